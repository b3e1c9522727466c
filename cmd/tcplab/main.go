// Tcplab — CLI entry point.
//
// This tool runs a sender/receiver protocol module pair over a simulated
// lossy channel and reports what was delivered, retransmitted and measured.
// Workloads come either from repeatable -send flags or from a TOML scenario
// file with actions and assertions.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tcplab"
	"github.com/opd-ai/tcplab/builtin"
	"github.com/opd-ai/tcplab/sim"
)

var version = "dev"

// sendFlag collects repeatable -send values of the form "AT_MS:DATA".
type sendFlag []tcplab.AppSend

func (f *sendFlag) String() string {
	parts := make([]string, len(*f))
	for i, s := range *f {
		parts[i] = fmt.Sprintf("%d:%s", s.AtMS, s.Data)
	}
	return strings.Join(parts, ",")
}

func (f *sendFlag) Set(value string) error {
	at, data, found := strings.Cut(value, ":")
	if !found {
		return fmt.Errorf("expected AT_MS:DATA, got %q", value)
	}
	atMS, err := strconv.ParseUint(at, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid send time %q: %w", at, err)
	}
	*f = append(*f, tcplab.AppSend{AtMS: atMS, Data: []byte(data)})
	return nil
}

func main() {
	var sends sendFlag

	sender := flag.String("sender", "rdt1", "Sender protocol: "+strings.Join(builtin.Names(), ", "))
	receiver := flag.String("receiver", "rdt1", "Receiver protocol: "+strings.Join(builtin.Names(), ", "))
	scenario := flag.String("scenario", "", "TOML scenario file (overrides channel flags and -send)")
	flag.Var(&sends, "send", "Application payload as AT_MS:DATA (repeatable)")
	loss := flag.Float64("loss", 0, "Packet loss probability, 0~1")
	corrupt := flag.Float64("corrupt", 0, "Packet corruption probability, 0~1")
	minLatency := flag.Uint64("min-latency", 10, "Minimum one-way latency in ms")
	maxLatency := flag.Uint64("max-latency", 100, "Maximum one-way latency in ms")
	seed := flag.Int64("seed", 0, "Random seed for the channel")
	reportPath := flag.String("report", "", "Write the JSON run report to this file")
	showEvents := flag.Bool("events", false, "Print the channel event timeline")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logrus.SetLevel(logrus.WarnLevel)
	if *debugMode {
		logrus.SetLevel(logrus.DebugLevel)
	}

	pterm.Info.Println(fmt.Sprintf("Tcplab — v%s", version))
	pterm.Println()

	options := tcplab.NewOptions()
	options.Sender = *sender
	options.Receiver = *receiver
	options.ScenarioPath = *scenario
	options.Sends = sends
	options.Config = sim.Config{
		LossRate:     *loss,
		CorruptRate:  *corrupt,
		MinLatencyMS: *minLatency,
		MaxLatencyMS: *maxLatency,
		Seed:         *seed,
	}

	lab, err := tcplab.New(options)
	if err != nil {
		pterm.Error.Println(fmt.Sprintf("failed to configure run: %v", err))
		os.Exit(1)
	}

	result, err := lab.Run()
	if err != nil {
		pterm.Error.Println(fmt.Sprintf("run failed: %v", err))
		os.Exit(1)
	}

	printReport(result.Report, *showEvents)
	printAssertions(result.Assertions)

	if *reportPath != "" {
		if err := writeReport(*reportPath, result.Report); err != nil {
			pterm.Error.Println(fmt.Sprintf("failed to write report: %v", err))
			os.Exit(1)
		}
		pterm.Info.Println("report written to " + *reportPath)
	}

	if !result.Passed() {
		os.Exit(1)
	}
}

// printReport renders the run summary and, optionally, the channel timeline.
func printReport(report *sim.Report, showEvents bool) {
	rows := pterm.TableData{
		{"Run ID", report.RunID},
		{"Duration", fmt.Sprintf("%d ms", report.DurationMS)},
		{"Sender packets", fmt.Sprintf("%d", report.SenderPacketCount)},
		{"Payloads delivered", fmt.Sprintf("%d", len(report.DeliveredData))},
	}
	for name, samples := range report.Metrics {
		rows = append(rows, []string{"Metric " + name, fmt.Sprintf("%d samples", len(samples))})
	}
	if err := pterm.DefaultTable.WithData(rows).Render(); err != nil {
		fmt.Println(rows)
	}
	pterm.Println()

	if showEvents {
		for _, ev := range report.LinkEvents {
			pterm.Printf("%6d ms  %s\n", ev.TimeMS, ev.Description)
		}
		pterm.Println()
	}
}

// printAssertions renders scenario assertion outcomes, if any.
func printAssertions(results []sim.AssertionResult) {
	for _, r := range results {
		if r.Passed {
			pterm.Success.Println(r.Detail)
		} else {
			pterm.Error.Println(r.Detail)
		}
	}
	if len(results) > 0 {
		pterm.Println()
	}
}

// writeReport serializes the report as indented JSON.
func writeReport(path string, report *sim.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
