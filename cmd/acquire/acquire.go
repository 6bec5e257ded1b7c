package main

// acquire runs one acquisition from the command line, no daemon needed:
// it drives the sine stimulus out the AO channel, reads the AI channel back,
// writes the configured sinks, and prints a summary. Ctrl-C stops a
// continuous run cleanly at the next tick.

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/labdaq/labdaq"
	"github.com/labdaq/labdaq/internal/gdrive"
)

type acquireOptions struct {
	output      string
	input       string
	rate        float64
	interval    time.Duration
	iterations  int
	basePath    string
	sqlitePath  string
	writeNpy    bool
	folderID    string
	credentials string
	token       string
}

var opt acquireOptions

func parseOptions() error {
	flag.StringVar(&opt.output, "ao", "SimDev1/ao0", "physical AO channel to drive")
	flag.StringVar(&opt.input, "ai", "SimDev1/ai0", "physical AI channel to read")
	flag.Float64Var(&opt.rate, "rate", 1000, "AI sample clock rate (Hz)")
	flag.DurationVar(&opt.interval, "interval", 100*time.Millisecond, "tick interval")
	flag.IntVar(&opt.iterations, "n", 100, "number of ticks to acquire (<=0 means run until interrupted)")
	flag.StringVar(&opt.basePath, "dir", ".", "directory runs are filed under")
	flag.StringVar(&opt.sqlitePath, "sqlite", "", "SQLite database to append rows to (empty disables)")
	flag.BoolVar(&opt.writeNpy, "npy", false, "also write the AI trace as a .npy file")
	flag.StringVar(&opt.folderID, "drive-folder", "", "Google Drive folder ID to upload the CSV to (empty disables)")
	flag.StringVar(&opt.credentials, "drive-credentials", "credentials.json", "OAuth client configuration file")
	flag.StringVar(&opt.token, "drive-token", "token.json", "stored OAuth user token file")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage of acquire:")
		flag.PrintDefaults()
	}
	flag.Parse()
	if opt.iterations < 0 {
		opt.iterations = 0
	}
	return nil
}

func main() {
	if err := parseOptions(); err != nil {
		log.Fatal(err)
	}

	driver := labdaq.NewSimDriver(1)
	cfg := labdaq.RunConfig{
		OutputChannel: opt.output,
		InputChannel:  opt.input,
		Rate:          opt.rate,
		Interval:      opt.interval,
		Iterations:    opt.iterations,
		BasePath:      opt.basePath,
		WriteCSV:      true,
		SQLitePath:    opt.sqlitePath,
		WriteNpy:      opt.writeNpy,
		DriveFolderID: opt.folderID,
	}
	runner := labdaq.NewRunner(driver, cfg)

	if opt.folderID != "" {
		client, err := gdrive.NewClient(context.Background(), opt.credentials, opt.token)
		if err != nil {
			log.Fatalf("could not set up Google Drive upload: %v", err)
		}
		runner.Uploader = client
	}

	// Ctrl-C ends a continuous run at the next tick boundary.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		fmt.Fprintln(os.Stderr, "\ninterrupted, stopping after the current tick")
		runner.Stop()
	}()

	summary, err := runner.Run()
	if err != nil {
		log.Fatalf("acquisition failed: %v", err)
	}
	for _, serr := range runner.SinkErrors() {
		fmt.Fprintf(os.Stderr, "sink problem (data kept where possible): %v\n", serr)
	}
	fmt.Println(summary)
}
