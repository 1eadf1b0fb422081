package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dashfold/dashfold/internal/deploy"
)

var deployDir string

func init() {
	serveCmd.Flags().StringVarP(&deployDir, "deploy-dir", "d", "", "Deployment drop-folder (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the definition store with the deployment watcher",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		dir := a.cfg.Directory
		if deployDir != "" {
			dir = deployDir
		}

		deployer := deploy.New(a.storage, a.log, a.polling)
		if dir != "" {
			deployer.Deploy(dir)
		} else {
			a.log.Info("no deployment directory configured, watcher disabled")
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		s := <-sig
		a.log.Info("shutting down", zap.String("signal", s.String()))

		deployer.Stop()
		return nil
	},
}
