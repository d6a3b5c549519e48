package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/nxsim/nxsim/services"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the emulation stack with the monitoring dashboard.",
	Long: "`monitor` builds the full HLE stack, starts the compositor " +
		"vsync loop, and serves the monitoring dashboard until interrupted.",
	Run: func(cmd *cobra.Command, _ []string) {
		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = portFromEnv()
		}

		b := services.MakeBuilder()
		if port > 0 {
			b = b.WithMonitorPort(port)
		}
		if async, _ := cmd.Flags().GetBool("async"); async {
			b = b.WithAsyncGPU()
		}
		if fast, _ := cmd.Flags().GetBool("fast-ticks"); fast {
			b = b.WithFastTicks()
		}
		if a, _ := cmd.Flags().GetBool("analysis"); a {
			b = b.WithPerfAnalysis()
		}
		if out, _ := cmd.Flags().GetString("output"); out != "" {
			b = b.WithOutputFileName(out)
		}

		emulation := b.Build()
		emulation.NVFlinger().StartVSync()

		url := fmt.Sprintf("http://localhost:%d", emulation.GetMonitorPort())
		fmt.Printf("Monitoring dashboard at %s\n", url)

		if open, _ := cmd.Flags().GetBool("open"); open {
			err := browser.OpenURL(url)
			if err != nil {
				log.Printf("error: cannot open browser, %v", err)
			}
		}

		waitForInterrupt()
		emulation.Terminate()
	},
}

func portFromEnv() int {
	value := os.Getenv("NXSIM_MONITOR_PORT")
	if value == "" {
		return 0
	}

	port, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("error: invalid NXSIM_MONITOR_PORT %q", value)
		return 0
	}

	return port
}

func waitForInterrupt() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Int("port", 0,
		"Monitoring server port, 0 picks a random port")
	monitorCmd.Flags().Bool("open", false,
		"Open the dashboard in a browser")
	monitorCmd.Flags().Bool("async", false,
		"Dispatch command lists on a worker goroutine")
	monitorCmd.Flags().Bool("fast-ticks", false,
		"Divide the GPU tick clock by 256")
	monitorCmd.Flags().Bool("analysis", false,
		"Record periodic performance metrics")
	monitorCmd.Flags().String("output", "",
		"Recording database file name")
}
