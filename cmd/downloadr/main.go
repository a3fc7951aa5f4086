package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jgivc/downloadr/internal/app"
	"github.com/jgivc/downloadr/internal/service/queue"
)

func main() {
	cfgFileName := flag.String("c", "config.yml", "Path to config file")
	destination := flag.String("d", "", "Destination directory for URLs given as arguments")
	parallel := flag.Int("p", 0, "Number of simultaneous downloads for this run (0 means config value)")
	urlFile := flag.String("i", "", "File with one URL per line to queue")
	flag.Parse()

	opts := app.Options{
		URLs:        flag.Args(),
		Destination: *destination,
	}
	if *urlFile != "" {
		data, err := os.ReadFile(*urlFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot read url file: %v\n", err)
			os.Exit(1)
		}

		opts.URLs = append(opts.URLs, queue.ParseURLs(string(data))...)
	}
	if *parallel > 0 {
		opts.Concurrency = parallel
	}

	app := app.New(*cfgFileName, opts)
	app.Start()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(c)

	for sig := range c {
		switch sig {
		case syscall.SIGUSR1:
			go app.PauseAll()
		case syscall.SIGUSR2:
			go app.ResumeAll()
		case os.Interrupt, syscall.SIGTERM:
			fmt.Println("Received termination signal. Shutting down...")
			app.Stop()
			fmt.Println("done")

			return
		}
	}
}
