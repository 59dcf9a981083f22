//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleywu/routesync/internal/channel"
	"github.com/wesleywu/routesync/internal/config"
	"github.com/wesleywu/routesync/internal/daemon"
	"github.com/wesleywu/routesync/internal/dispatcher"
	"github.com/wesleywu/routesync/internal/handler"
	"github.com/wesleywu/routesync/internal/iface"
	"github.com/wesleywu/routesync/internal/logger"
	"github.com/wesleywu/routesync/internal/metrics"
	"github.com/wesleywu/routesync/internal/netlink"
	"github.com/wesleywu/routesync/internal/policy"
	"github.com/wesleywu/routesync/internal/route"
	"github.com/wesleywu/routesync/internal/store"
	"github.com/wesleywu/routesync/internal/sysctl"
)

var (
	dumpFamily string
	nextHops   []string
)

func addPlatformCommands(root *cobra.Command) {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon",
		Long:  `Subscribe to kernel notifications, publish them to Redis and serve route requests.`,
		RunE:  runDaemon,
	}

	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the kernel routing table as published",
		RunE:  dumpRoutes,
	}
	dumpCmd.Flags().StringVarP(&dumpFamily, "family", "f", "", "Address family (ipv4, ipv6, empty for both)")

	routeCmd := &cobra.Command{
		Use:   "route",
		Short: "Program a kernel route",
	}
	for _, op := range []struct {
		use   string
		short string
		op    route.Operation
	}{
		{"add DEST", "Create a route; fails if it exists", route.OpAdd},
		{"replace DEST", "Create or replace a route", route.OpUpdate},
		{"del DEST", "Delete a route", route.OpDelete},
	} {
		op := op
		cmd := &cobra.Command{
			Use:   op.use,
			Short: op.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return programRoute(cmd.Context(), op.op, args[0])
			},
		}
		cmd.Flags().StringArrayVarP(&nextHops, "nexthop", "n", nil, "Next hop GATEWAY[,dev=IFACE][,weight=N]; repeat for multipath")
		routeCmd.AddCommand(cmd)
	}

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Ask the running daemon to republish the routing table",
		RunE:  requestRefresh,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Replay all kernel tables once and print per-channel counters",
		RunE:  showStats,
	}

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install as a systemd service",
		RunE:  installService,
	}

	uninstallCmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall the systemd service",
		RunE:  uninstallService,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show service status",
		RunE:  showStatus,
	}

	root.AddCommand(runCmd, dumpCmd, routeCmd, refreshCmd, statsCmd, installCmd, uninstallCmd, statusCmd)
}

// stack is the decode side shared by every command.
type stack struct {
	policy   *policy.Policy
	lookup   *iface.Lookup
	decoder  *route.Decoder
	channels []channel.Channel
}

func newStack(cfg *config.Config, log *logger.Logger) *stack {
	lookup := iface.NewLookup(iface.NewClassifier(cfg.Policy.ManagementVLANs, cfg.Policy.ManagementVLANIDs))
	pol := policy.New(policy.Config{
		UplinkPrefix:          cfg.Policy.UplinkPrefix,
		LoopbackName:          cfg.Policy.LoopbackName,
		SubInterfaceDelimiter: cfg.Policy.SubInterfaceDelimiter,
	}, lookup)
	dec := route.NewDecoder(pol, log)
	return &stack{policy: pol, lookup: lookup, decoder: dec, channels: channel.New(pol, dec)}
}

func (s *stack) opener(cfg *config.Config) dispatcher.Opener {
	return func(ch channel.Channel) (dispatcher.Conn, error) {
		s, err := netlink.Subscribe(ch.Groups(), cfg.ReceiveBuffer(ch.Kind().String()))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func (s *stack) reader(bufSize int) handler.Reader {
	return func(fam route.Family) ([]*route.Record, error) {
		return s.decoder.ReadAll(fam, bufSize)
	}
}

func (s *stack) resolveInterface(name string) (int, error) {
	info, ok := s.lookup.InfoByName(name)
	if !ok {
		return 0, fmt.Errorf("interface %s not found", name)
	}
	return info.Index, nil
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	log.ConfigLoaded(configFile, len(channel.ResyncOrder))
	log.ServiceStart(version, strconv.Itoa(os.Getpid()))
	defer log.ServiceStop()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend := store.NewRedisBackend(cfg.Redis.Addr, cfg.Redis.DB)
	defer backend.Close()
	if err := backend.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}

	sysctl.EnablePacketLog(cfg.PacketLog, log)

	st := newStack(cfg, log)
	m := metrics.NewMetrics()
	d := dispatcher.New(dispatcher.Config{
		BufferSize:     cfg.Netlink.BufferSize,
		ResyncInterval: cfg.ResyncInterval,
	}, st.channels, st.opener(cfg), store.NewPublisher(backend, cfg.Redis.EventChannel), iface.Addresses, m, log)

	kernel := &netlink.Requester{Timeout: cfg.Netlink.AckTimeout, BufSize: cfg.Netlink.BufferSize}
	h := handler.New(kernel, d, st.reader(cfg.Netlink.BufferSize), cfg.Netlink.AckTimeout, m, log)
	srv, err := handler.NewServer(backend, h, cfg.Workers, cfg.Redis.RequestChannel, cfg.Redis.ReplyChannel, log)
	if err != nil {
		return err
	}
	defer srv.Close()
	go func() {
		if err := srv.Serve(ctx); err != nil {
			log.Error("Request server stopped", slog.Any("error", err))
		}
	}()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		hs := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics listener failed", slog.String("addr", cfg.MetricsAddr), slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			hs.Shutdown(shutdownCtx)
		}()
	}

	if err := d.Run(ctx); err != nil {
		log.Error("Dispatcher stopped", slog.Any("error", err))
		return err
	}
	return nil
}

func dumpRoutes(_ *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	fam, err := route.ParseFamily(dumpFamily)
	if err != nil {
		return err
	}
	st := newStack(cfg, log)
	records, err := st.decoder.ReadAll(fam, cfg.Netlink.BufferSize)
	if err != nil {
		return fmt.Errorf("failed to read routing table: %w", err)
	}
	for _, rec := range records {
		fmt.Println(rec)
	}
	return nil
}

func programRoute(ctx context.Context, op route.Operation, dest string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	st := newStack(cfg, log)
	rec, err := routeRecord(op, dest, nextHops, st.resolveInterface)
	if err != nil {
		return err
	}
	kernel := &netlink.Requester{Timeout: cfg.Netlink.AckTimeout, BufSize: cfg.Netlink.BufferSize}
	h := handler.New(kernel, nil, nil, cfg.Netlink.AckTimeout, nil, log)
	if err := h.Write(ctx, store.RouteObject(rec)); err != nil {
		return err
	}
	fmt.Printf("%s %s: %s\n", op, rec.Dst, handler.ResultOK)
	return nil
}

func requestRefresh(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	backend := store.NewRedisBackend(cfg.Redis.Addr, cfg.Redis.DB)
	defer backend.Close()

	req := store.Request{
		ID:   strconv.FormatInt(time.Now().UnixNano(), 36),
		Kind: store.RequestWrite,
		Key:  string(store.CategoryRouteEvent),
	}
	payload, err := store.Encode(req)
	if err != nil {
		return err
	}
	if err := backend.Publish(cmd.Context(), cfg.Redis.RequestChannel, payload); err != nil {
		return fmt.Errorf("failed to send refresh request: %w", err)
	}
	fmt.Printf("Refresh requested (id %s)\n", req.ID)
	return nil
}

// discard counts what the dispatcher would have published.
type discard struct{}

func (discard) Publish(context.Context, *store.Object) error { return nil }

func showStats(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	st := newStack(cfg, log)
	m := metrics.NewMetrics()
	d := dispatcher.New(dispatcher.Config{BufferSize: cfg.Netlink.BufferSize},
		st.channels, st.opener(cfg), discard{}, nil, m, log)
	if err := d.Start(cmd.Context()); err != nil {
		return err
	}
	d.Close()
	fmt.Print(metrics.Format(m.Snapshot()))
	return nil
}

func installService(_ *cobra.Command, _ []string) error {
	if os.Getuid() != 0 {
		return errors.New("root privileges required for installation")
	}
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	configPath := "/etc/routesync/config.yaml"
	if configFile != "" {
		configPath = configFile
	}
	if err := daemon.NewSystemdService(execPath, configPath).Install(); err != nil {
		return err
	}
	fmt.Println("Service installed successfully")
	return nil
}

func uninstallService(_ *cobra.Command, _ []string) error {
	if os.Getuid() != 0 {
		return errors.New("root privileges required for uninstallation")
	}
	if err := daemon.NewSystemdService("", "").Uninstall(); err != nil {
		return err
	}
	fmt.Println("Service uninstalled successfully")
	return nil
}

func showStatus(_ *cobra.Command, _ []string) error {
	service := daemon.NewSystemdService("", "")
	status, err := service.Status()
	if err != nil {
		return fmt.Errorf("failed to get service status: %w", err)
	}
	fmt.Printf("Service status: %s\n", status)
	fmt.Printf("Service installed: %t\n", service.IsInstalled())
	return nil
}
