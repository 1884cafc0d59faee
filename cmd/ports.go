package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/drgolem/serialmic/pkg/bytesource"

	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available serial ports",
	Long: `List the serial ports present on this machine. USB adapters are shown
with their vendor and product IDs, which helps finding the microcontroller
among several devices.

Examples:
  serialmic ports`,
	Args: cobra.NoArgs,
	Run:  runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) {
	ports, err := bytesource.ListPorts()
	if err != nil {
		slog.Error("Failed to list serial ports", "error", err)
		os.Exit(1)
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return
	}

	fmt.Printf("Found %d serial port(s):\n\n", len(ports))
	for _, p := range ports {
		if !p.IsUSB {
			fmt.Printf("  %s\n", p.Name)
			continue
		}
		fmt.Printf("  %s  [USB %s:%s]", p.Name, p.VID, p.PID)
		if p.Product != "" {
			fmt.Printf("  %s", p.Product)
		}
		if p.SerialNumber != "" {
			fmt.Printf("  (serial %s)", p.SerialNumber)
		}
		fmt.Println()
	}
}
