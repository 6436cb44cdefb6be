package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pathlearn/fedclient/cmd/cli"
	"github.com/pathlearn/fedclient/pkg/logger"
)

var (
	logLevel   string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "fedclient",
	Short: "Federated Learning Client",
	Long:  `An on-device federated learning client that trains a local model on user interactions and contributes weight updates to a central coordinator`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.InitWithLevel(logLevel)
	},
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunClient(configPath)
	},
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Start the federated learning client",
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunClient(configPath)
	},
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Store the API token",
	Run: func(cmd *cobra.Command, args []string) {
		token, _ := cmd.Flags().GetString("token")
		cli.RunAuth(token)
	},
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run one local training round and submit the update",
	Run: func(cmd *cobra.Command, args []string) {
		downloadLatest, _ := cmd.Flags().GetBool("download-latest")
		epochs, _ := cmd.Flags().GetInt("epochs")
		cli.RunTrain(configPath, downloadLatest, epochs)
	},
}

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Inspect or clear buffered training data",
}

var dataSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the training data summary",
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunDataSummary(configPath)
	},
}

var dataClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all buffered training data",
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunDataClear(configPath)
	},
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage the cached model",
}

var modelDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the latest global model",
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunModelDownload(configPath)
	},
}

var modelInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the cached model metadata",
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunModelInfo(configPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "Path to config file")

	authCmd.Flags().String("token", "", "API token issued by the server")
	if err := authCmd.MarkFlagRequired("token"); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	trainCmd.Flags().Bool("download-latest", true, "Download the latest global model before training")
	trainCmd.Flags().Int("epochs", 0, "Override the configured epoch count")

	dataCmd.AddCommand(dataSummaryCmd)
	dataCmd.AddCommand(dataClearCmd)
	modelCmd.AddCommand(modelDownloadCmd)
	modelCmd.AddCommand(modelInfoCmd)
}

func main() {
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(dataCmd)
	rootCmd.AddCommand(modelCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
