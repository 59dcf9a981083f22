// Package store is the attributed object boundary of the daemon. Decoded
// kernel state leaves as Objects, write and read requests arrive as
// Objects, and a Backend persists and announces them.
package store

import (
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/wesleywu/routesync/internal/route"
)

// Category selects the table an object belongs to.
type Category string

const (
	CategoryRoute      Category = "ROUTE_TABLE"
	CategoryRouteEvent Category = "ROUTE_EVENT"
	CategoryLink       Category = "LINK_TABLE"
	CategoryAddr       Category = "INTF_ADDR_TABLE"
	CategoryNeighbor   Category = "NEIGH_TABLE"
	CategoryNetConf    Category = "NETCONF_TABLE"
)

// KeySeparator joins a category and an object name.
const KeySeparator = ":"

// Object is a keyed set of attributes. Attribute ids are flat names or
// indexed paths built with Indexed.
type Object struct {
	Category Category
	Name     string
	Op       route.Operation
	attrs    map[string]string
}

// NewObject returns an empty object. The operation defaults to add.
func NewObject(cat Category, name string) *Object {
	return &Object{Category: cat, Name: name, Op: route.OpAdd, attrs: make(map[string]string)}
}

// Key is the backend key, e.g. "ROUTE_TABLE:10.0.0.0/8".
func (o *Object) Key() string {
	if o.Name == "" {
		return string(o.Category)
	}
	return string(o.Category) + KeySeparator + o.Name
}

// ParseKey splits a backend key into category and name.
func ParseKey(key string) (Category, string) {
	cat, name, _ := strings.Cut(key, KeySeparator)
	return Category(cat), name
}

// Indexed builds the id of one field of a list member, e.g. "nh/0/gateway".
func Indexed(list string, index int, field string) string {
	return list + "/" + strconv.Itoa(index) + "/" + field
}

func (o *Object) Set(id, value string) {
	o.attrs[id] = value
}

func (o *Object) SetUint(id string, v uint64) {
	o.attrs[id] = strconv.FormatUint(v, 10)
}

func (o *Object) SetInt(id string, v int64) {
	o.attrs[id] = strconv.FormatInt(v, 10)
}

func (o *Object) SetAddr(id string, addr netip.Addr) {
	o.attrs[id] = addr.String()
}

func (o *Object) SetBool(id string, v bool) {
	o.attrs[id] = strconv.FormatBool(v)
}

func (o *Object) Get(id string) (string, bool) {
	v, ok := o.attrs[id]
	return v, ok
}

// Uint returns a numeric attribute. A value that does not parse counts as
// absent.
func (o *Object) Uint(id string) (uint64, bool) {
	v, ok := o.attrs[id]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 0, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (o *Object) Int(id string) (int64, bool) {
	v, ok := o.attrs[id]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 0, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (o *Object) Addr(id string) (netip.Addr, bool) {
	v, ok := o.attrs[id]
	if !ok {
		return netip.Addr{}, false
	}
	a, err := netip.ParseAddr(v)
	if err != nil {
		return netip.Addr{}, false
	}
	return a, true
}

func (o *Object) Delete(id string) {
	delete(o.attrs, id)
}

// Len is the number of attributes.
func (o *Object) Len() int {
	return len(o.attrs)
}

// Fields returns a copy of the attributes.
func (o *Object) Fields() map[string]string {
	m := make(map[string]string, len(o.attrs))
	for k, v := range o.attrs {
		m[k] = v
	}
	return m
}

// ids returns the attribute ids in sorted order.
func (o *Object) ids() []string {
	ids := make([]string, 0, len(o.attrs))
	for k := range o.attrs {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return ids
}

// Fingerprint hashes the key and attributes. Two publications with the same
// fingerprint carry the same state.
func (o *Object) Fingerprint() uint64 {
	d := xxhash.New()
	d.WriteString(o.Key())
	for _, id := range o.ids() {
		d.WriteString("\x00")
		d.WriteString(id)
		d.WriteString("=")
		d.WriteString(o.attrs[id])
	}
	return d.Sum64()
}

func (o *Object) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", o.Op, o.Key())
	for _, id := range o.ids() {
		fmt.Fprintf(&b, " %s=%s", id, o.attrs[id])
	}
	return b.String()
}
