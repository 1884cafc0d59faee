package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "serialmic",
	Version: version,
	Short:   "Record a serial-attached microphone to WAV",
	Long: `serialmic - records audio streamed by a microcontroller over a serial
link and saves it as a 24-bit mono WAV file.

The device announces a recording with the line "Mic acquisition: START",
streams 24-bit samples as 4-byte frames (3 big-endian bytes and '\n'),
and ends it with "Mic acquisition: STOP\r\n".

Commands:
  - record: Record sessions from a serial port
  - replay: Decode a raw capture of the serial stream
  - ports: List available serial ports
  - info: Show the format and length of a recording
  - transform: Resample a recording`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
