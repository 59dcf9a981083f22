//go:build linux

package route

import (
	"github.com/wesleywu/routesync/internal/netlink"
)

// ReadAllSeq is the request id of a one-shot table read.
const ReadAllSeq = 0x101

// ReadAll dumps the kernel routing table for fam (FamilyUnspec for both)
// over a throwaway socket. Messages the decoder rejects are skipped.
func (d *Decoder) ReadAll(fam Family, bufSize int) ([]*Record, error) {
	var records []*Record
	buf := make([]byte, bufSize)
	err := netlink.Dump(netlink.RTM_GETROUTE, uint8(fam), netlink.SizeofRtMsg, ReadAllSeq, buf, func(m *netlink.Message) {
		if m.Header.Type != netlink.RTM_NEWROUTE {
			return
		}
		rec, err := d.Decode(m)
		if err != nil {
			return
		}
		records = append(records, rec)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
