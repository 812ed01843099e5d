package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/axonlab/mirador/cmd/mock-imgserver/backend"
	"github.com/axonlab/mirador/pkg/version"
	"github.com/spf13/cobra"
)

var (
	addr     string
	username string
	password string
	logger   *zap.Logger
)

func init() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		panic(err)
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.PersistentFlags().StringVarP(&addr, "addr", "a", ":4080", "Address to listen on")
	rootCmd.PersistentFlags().StringVarP(&username, "username", "u", "root", "Username accepted by the login endpoint")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "password", "Password accepted by the login endpoint")
}

var (
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of mock-imgserver",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mock-imgserver version %s\n", version.Get())
		},
	}

	rootCmd = &cobra.Command{
		Use:   "mock-imgserver",
		Short: "Mock Image Repository Server",
		Long:  `Mock Image Repository Server serves a fixed project hierarchy and synthetic tiles for testing`,
		Run: func(cmd *cobra.Command, args []string) {
			srv := backend.NewServer(logger, backend.Options{
				Users: map[string]string{username: password},
			})
			if err := srv.Start(addr); err != nil {
				logger.Error("server error occurred", zap.Error(err))
				os.Exit(1)
			}
		},
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
