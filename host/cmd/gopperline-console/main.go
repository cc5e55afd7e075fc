// Command gopperline-console is a thin line-oriented REPL for the ASCII
// G-code protocol the firmware speaks: it opens the serial link, sends
// whatever line the operator types, and prints back whatever the firmware
// answers (ok / error: .../X:.. Y:.. Z:.. E:..). It is the host-side
// companion tool to the firmware, not a reimplementation of it.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopherline/host/serial"
)

var (
	device = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud   = flag.Int("baud", 115200, "Baud rate")
)

func main() {
	flag.Parse()

	fmt.Println("gopperline console")
	fmt.Println("===================")

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud

	port, err := serial.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open %s: %v\n", *device, err)
		os.Exit(1)
	}
	defer port.Close()

	fmt.Printf("Connected to %s at %d baud.\n", *device, *baud)
	fmt.Println("Type G-code lines to send; 'quit' to exit.")

	responses := make(chan string, 16)
	go readResponses(port, responses)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			fmt.Println("Goodbye!")
			return
		}

		if _, err := port.Write([]byte(line + "\n")); err != nil {
			fmt.Fprintf(os.Stderr, "Error: write failed: %v\n", err)
			continue
		}

		select {
		case resp := <-responses:
			fmt.Print(resp)
		case <-time.After(2 * time.Second):
			fmt.Println("(no response within 2s)")
		}
	}
}

// readResponses pumps bytes off the port and hands complete CR/LF-terminated
// lines to the channel, mirroring the firmware's line-oriented protocol.
func readResponses(port serial.Port, out chan<- string) {
	buf := make([]byte, 0, 128)
	chunk := make([]byte, 64)
	for {
		n, err := port.Read(chunk)
		if err != nil {
			return
		}
		for i := 0; i < n; i++ {
			b := chunk[i]
			buf = append(buf, b)
			if b == '\n' {
				out <- string(buf)
				buf = buf[:0]
			}
		}
	}
}
