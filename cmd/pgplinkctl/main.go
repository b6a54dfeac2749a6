package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/pgplink/internal/config"
	"github.com/danmuck/pgplink/internal/evr"
	"github.com/danmuck/pgplink/internal/link"
	"github.com/danmuck/pgplink/internal/logging"
	"github.com/danmuck/pgplink/internal/observability"
	"github.com/danmuck/pgplink/internal/pgp/pgpdev"
	"github.com/danmuck/pgplink/internal/protocol/routing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pgplinkctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "link.toml", "link configuration file")
		metricsAddr = flag.String("metrics", "", "optional /metrics listen address")
		readAddr    = flag.String("read", "", "register address to read (hex)")
		readWords   = flag.Int("words", 1, "word count for -read")
		writeAddr   = flag.String("write", "", "register address to write (hex)")
		writeData   = flag.String("data", "", "comma-separated hex words for -write")
		cmdOp       = flag.String("cmd", "", "command opcode to send (hex)")
		runOp       = flag.String("run", "", "run opcode to send (hex)")
		timeout     = flag.Duration("timeout", 2*time.Second, "per-operation timeout")
	)
	flag.Parse()

	logging.ConfigureRuntime()
	observability.RegisterMetrics()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	profile, err := cfg.Profile()
	if err != nil {
		return err
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error().Err(err).Str("addr", *metricsAddr).Msg("metrics listener failed")
			}
		}()
	}

	dev, err := pgpdev.Open(cfg.Device, cfg.Mask())
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := programLanes(dev, cfg.Lanes); err != nil {
		return err
	}

	tr := link.NewSyncTransport(dev, link.SyncOptions{
		Device:     cfg.Device,
		Profile:    profile,
		Mask:       cfg.Mask(),
		MaxRxWords: cfg.MaxRxWords,
		Backoff:    cfg.Backoff(),
	})
	linkCfg := routing.Config(cfg.LinkConfig)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch {
	case *readAddr != "":
		return doRead(ctx, tr, linkCfg, *readAddr, *readWords, *timeout)
	case *writeAddr != "":
		return doWrite(ctx, tr, linkCfg, *writeAddr, *writeData)
	case *cmdOp != "":
		op, err := parseWord(*cmdOp)
		if err != nil {
			return err
		}
		_, err = tr.TransmitCommand(ctx, link.Command{OpCode: op}, linkCfg)
		return err
	case *runOp != "":
		op, err := parseWord(*runOp)
		if err != nil {
			return err
		}
		_, err = tr.TransmitRun(ctx, link.Command{OpCode: op}, linkCfg)
		return err
	default:
		return fmt.Errorf("one of -read, -write, -cmd, -run required")
	}
}

func programLanes(dev *pgpdev.Device, lanes []config.Lane) error {
	if len(lanes) == 0 {
		return nil
	}
	block, err := evr.NewBlock(dev.RegisterPage())
	if err != nil {
		return err
	}
	for _, lane := range lanes {
		block.SetRunOpCode(lane.Index, lane.RunOpCode)
		block.SetAcceptOpCode(lane.Index, lane.AcceptOpCode)
		block.SetRunDelay(lane.Index, lane.RunDelay)
		block.SetAcceptDelay(lane.Index, lane.AcceptDelay)
		log.Info().Uint8("lane", lane.Index).
			Uint32("run_opcode", lane.RunOpCode).
			Uint32("run_delay", lane.RunDelay).
			Msg("lane programmed")
	}
	return nil
}

func doRead(ctx context.Context, tr *link.SyncTransport, cfg routing.Config, addrStr string, words int, timeout time.Duration) error {
	addr, err := parseWord(addrStr)
	if err != nil {
		return err
	}
	reg := link.NewRegister(addr, words)
	if _, err := tr.TransmitRegister(ctx, reg, false, 0, cfg); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for {
		res, _, err := tr.Receive(reg)
		if err != nil {
			return err
		}
		if res.Class == link.RxRegister {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("no register reply within %v", timeout)
		}
		time.Sleep(time.Millisecond)
	}

	for i, w := range reg.Data {
		fmt.Printf("0x%08X: 0x%08X\n", addr+uint32(i*4), w)
	}
	fmt.Printf("status: 0x%08X\n", reg.Status)
	return nil
}

func doWrite(ctx context.Context, tr *link.SyncTransport, cfg routing.Config, addrStr, dataStr string) error {
	addr, err := parseWord(addrStr)
	if err != nil {
		return err
	}
	if dataStr == "" {
		return fmt.Errorf("-write requires -data")
	}
	parts := strings.Split(dataStr, ",")
	reg := link.NewRegister(addr, len(parts))
	for i, part := range parts {
		w, err := parseWord(part)
		if err != nil {
			return err
		}
		reg.Data[i] = w
	}
	n, err := tr.TransmitRegister(ctx, reg, true, 0, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d bytes to 0x%08X\n", n, addr)
	return nil
}

func parseWord(raw string) (uint32, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.ToLower(raw), "0x"))
	v, err := strconv.ParseUint(raw, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid hex word %q: %w", raw, err)
	}
	return uint32(v), nil
}
