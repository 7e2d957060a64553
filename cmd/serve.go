package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kiosk and admin web server",
	Long: `Start the Face Attendance web server.
The server hosts the kiosk page and recognition endpoint, the PIN protected
admin API and /metrics. A daily job sweeps absences shortly after the
attendance window closes.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Bool("no-scheduler", false, "Disable the daily absence sweep")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, appOptions{hnsw: true})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}
	if a.cfg.Web.AdminPIN == "" {
		a.logger.Warn("ADMIN_PIN is empty, admin login is disabled")
	}

	if !mustGetBool(cmd, "no-scheduler") {
		scheduler := a.service.NewScheduler(a.cfg.Attendance.SweepDelay)
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer scheduler.Stop()
		a.logger.Info("absence sweep scheduled",
			zap.String("cron", scheduler.Spec()),
			zap.Stringer("window", a.service.Window))
	}

	sessions := postgres.NewSessionRepository(a.pool)
	if n, err := sessions.DeleteExpired(ctx); err != nil {
		a.logger.Warn("failed to purge expired admin sessions", zap.Error(err))
	} else if n > 0 {
		a.logger.Info("purged expired admin sessions", zap.Int64("count", n))
	}

	server := web.NewServer(a.cfg, web.Deps{
		Service:  a.service,
		Reports:  a.reports,
		Metrics:  a.metrics,
		Logger:   a.logger.Named("web"),
		Sessions: sessions,
		DB:       a.pool,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("error during shutdown", zap.Error(err))
		}
	}()

	fmt.Printf("Starting Face Attendance on http://%s:%d\n", a.cfg.Web.Host, a.cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
