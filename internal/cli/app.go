package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brporter/remoteview/internal/auth"
	"github.com/brporter/remoteview/internal/config"
	"github.com/brporter/remoteview/internal/provision"
	"github.com/brporter/remoteview/internal/session"
	"github.com/brporter/remoteview/internal/transport"
	"github.com/brporter/remoteview/internal/viewer"
)

// ElementID is the container the viewer page renders into.
const ElementID = "container"

const tokenLeeway = time.Minute

// App runs one remote view: the session controller plus the local viewer.
type App struct {
	Config config.Config
	Logger *slog.Logger
	// Stdin, when set, is read line by line and typed on the device.
	Stdin io.Reader
	// Out receives the session log and the viewer address.
	Out io.Writer
	// Open launches a browser on the viewer page.
	Open bool

	// Provisioner and Dialer override the configured ones.
	Provisioner provision.Provisioner
	Dialer      transport.Dialer

	addr chan string
}

// Run blocks until ctx ends, a signal arrives or the session can no longer
// make progress.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	sessCfg, err := a.Config.Session()
	if err != nil {
		return err
	}
	prov := a.Provisioner
	if prov == nil {
		prov, err = Provisioner(a.Config, a.Logger)
		if err != nil {
			return err
		}
	}
	out := a.Out
	if out == nil {
		out = os.Stderr
	}

	var ctrl *session.Controller
	view := viewer.NewServer(a.Logger, func(ctx context.Context) (session.Snapshot, error) {
		return ctrl.Snapshot(ctx)
	})
	ctrl = session.NewController(sessCfg, session.Options{
		Provisioner: prov,
		Renderer:    view,
		Dialer:      a.Dialer,
		Logger:      a.Logger,
	})

	ln, err := net.Listen("tcp", a.Config.Viewer.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.Config.Viewer.Listen, err)
	}
	httpServer := &http.Server{
		Handler:           view.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ctrl.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("viewer: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-ctrl.Done():
			if err := ctrl.Err(); !errors.Is(err, session.ErrStopped) {
				return fmt.Errorf("session ended: %w", err)
			}
			return nil
		}
	})
	if a.Stdin != nil {
		g.Go(func() error {
			return ForwardLines(gctx, a.Stdin, ctrl.SendText)
		})
	}

	if err := ctrl.Mount(gctx, session.MountSettings{
		ElementID: ElementID,
		Log:       LogSink(out, a.Logger),
	}); err != nil {
		cancel()
		g.Wait()
		return err
	}

	viewURL := "http://" + ln.Addr().String()
	fmt.Fprintf(out, "Viewer: %s\n", viewURL)
	a.Logger.Info("session mounted", "viewer", viewURL)
	if a.addr != nil {
		a.addr <- viewURL
	}
	if a.Open {
		openBrowserFn(viewURL)
	}

	return g.Wait()
}

// Provisioner picks the endpoint source: a fixed endpoint when one is
// configured, otherwise the device farm with the cached login token.
func Provisioner(cfg config.Config, logger *slog.Logger) (provision.Provisioner, error) {
	if cfg.Endpoint != "" {
		return provision.Static{URL: cfg.Endpoint}, nil
	}
	if cfg.Farm.URL == "" {
		return nil, errors.New("no endpoint configured: set endpoint or farm.url")
	}

	var token string
	cache, err := config.LoadTokenCache()
	switch {
	case err == nil:
		token = cache.Bearer()
		if cache.IDToken != "" && auth.TokenExpired(cache.IDToken, time.Now(), tokenLeeway) {
			logger.Warn("cached token has expired, run `remoteview login`")
		}
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("not logged in, run `remoteview login`")
	default:
		return nil, fmt.Errorf("load token cache: %w", err)
	}

	return provision.NewFarmClient(cfg.FarmClientConfig(token), nil, logger), nil
}
