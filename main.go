package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

var engineLog *log.Logger

const workerStaggerDelay = 2 * time.Second

type cliOptions struct {
	numAccounts   int
	workers       int
	verifyWorkers int
	headless      bool
	proxyFile     string
	proxyAPI      string
	userData      string
	output        string
	resultsFile   string
	minDelay      int
	maxDelay      int
	maxRetries    int
	verifyTimeout int
	checkInterval int
	captchaSvc    string
	captchaKey    string
	mailProvider  string
	mailPassword  string
	imapServer    string
	tempMailURL   string
	useTempMail   bool
	verify        bool
}

func parseFlags() cliOptions {
	var opts cliOptions

	flag.IntVar(&opts.numAccounts, "n", 1, "number of accounts to create")
	flag.IntVar(&opts.workers, "workers", 1, "concurrent creation workers (1 = sequential batch)")
	flag.IntVar(&opts.verifyWorkers, "verify-workers", 2, "concurrent verification workers")
	flag.BoolVar(&opts.headless, "headless", false, "run browsers without a window")
	flag.StringVar(&opts.proxyFile, "proxy-file", "", "file with one proxy per line")
	flag.StringVar(&opts.proxyAPI, "proxy-api", "", "remote endpoint returning a proxy list")
	flag.StringVar(&opts.userData, "user-data", "", "JSON file with custom name pools")
	flag.StringVar(&opts.output, "output", "pinterest_accounts.json", "account output file")
	flag.StringVar(&opts.resultsFile, "results", "batch_results.json", "batch summary file")
	flag.IntVar(&opts.minDelay, "min-delay", 30, "minimum seconds between accounts (batch mode)")
	flag.IntVar(&opts.maxDelay, "max-delay", 120, "maximum seconds between accounts (batch mode)")
	flag.IntVar(&opts.maxRetries, "max-retries", 3, "signup attempts per account")
	flag.IntVar(&opts.verifyTimeout, "verify-timeout", 600, "seconds to wait for the verification email")
	flag.IntVar(&opts.checkInterval, "check-interval", 60, "seconds between inbox checks")
	flag.StringVar(&opts.captchaSvc, "captcha-service", "2captcha", "captcha service: 2captcha or anticaptcha")
	flag.StringVar(&opts.captchaKey, "captcha-key", "", "captcha service API key (overrides env)")
	flag.StringVar(&opts.mailProvider, "mail-provider", "", "mail provider for IMAP verification: gmail, yahoo or outlook")
	flag.StringVar(&opts.mailPassword, "mail-password", "", "IMAP password when not using disposable mail")
	flag.StringVar(&opts.imapServer, "imap-server", "", "IMAP host:port override")
	flag.StringVar(&opts.tempMailURL, "tempmail-url", DefaultTempMailURL, "disposable mailbox service URL")
	flag.BoolVar(&opts.useTempMail, "temp-mail", true, "use a disposable mailbox per account")
	flag.BoolVar(&opts.verify, "verify", true, "verify email after signup")
	flag.Parse()

	if opts.numAccounts <= 0 {
		log.Fatal("-n must be a positive integer")
	}
	if opts.workers <= 0 {
		log.Fatal("-workers must be a positive integer")
	}
	if opts.maxDelay < opts.minDelay {
		log.Fatal("-max-delay must be >= -min-delay")
	}
	return opts
}

func main() {
	opts := parseFlags()

	engineLogFile, moduleLogFile, modLog := setupLogging()
	defer engineLogFile.Close()
	defer moduleLogFile.Close()

	_ = godotenv.Load()

	if opts.captchaKey == "" {
		switch opts.captchaSvc {
		case "anticaptcha":
			opts.captchaKey = GetAntiCaptchaAPIKey()
		default:
			opts.captchaKey = GetCaptchaAPIKey()
		}
	}

	if opts.imapServer == "" && opts.mailProvider != "" {
		server, ok := ServerForProvider(opts.mailProvider)
		if !ok {
			engineLog.Fatalf("unknown mail provider %q", opts.mailProvider)
		}
		opts.imapServer = server
	}

	proxyManager := loadProxies(opts)
	profiles := loadProfiles(opts)
	store := NewAccountStore(opts.output)

	cfg := RunnerConfig{
		Headless:       opts.headless,
		UseTempMail:    opts.useTempMail,
		TempMailURL:    opts.tempMailURL,
		MailPassword:   opts.mailPassword,
		IMAPServer:     opts.imapServer,
		Verify:         opts.verify,
		VerifyTimeout:  time.Duration(opts.verifyTimeout) * time.Second,
		CheckInterval:  time.Duration(opts.checkInterval) * time.Second,
		MaxRetries:     opts.maxRetries,
		CaptchaService: opts.captchaSvc,
		CaptchaKey:     opts.captchaKey,
	}

	if opts.verify && !opts.useTempMail && opts.mailPassword == "" {
		engineLog.Fatal("IMAP verification requires -mail-password")
	}
	if opts.headless && cfg.CaptchaKey == "" {
		engineLog.Printf("WARNING: headless with no captcha key - a captcha challenge will fail the account")
	}

	var exitCode int
	if opts.workers > 1 {
		exitCode = runConcurrent(opts, cfg, proxyManager, store, profiles, modLog)
	} else {
		exitCode = runBatch(opts, cfg, proxyManager, store, profiles, modLog)
	}
	os.Exit(exitCode)
}

func setupLogging() (engineLogFile, moduleLogFile *os.File, modLog *log.Logger) {
	var err error

	engineLogFile, err = os.OpenFile("engine.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("Failed to open engine log file: %v", err)
	}
	engineLog = log.New(io.MultiWriter(os.Stdout, engineLogFile), "", log.LstdFlags)

	moduleLogFile, err = os.OpenFile("signup.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		engineLog.Fatalf("Failed to open module log file: %v", err)
	}
	modLog = log.New(io.MultiWriter(os.Stdout, moduleLogFile), "", log.LstdFlags)

	return engineLogFile, moduleLogFile, modLog
}

func loadProxies(opts cliOptions) *ProxyManager {
	proxyManager := NewProxyManager()

	if opts.proxyFile != "" {
		if err := proxyManager.LoadFromFile(opts.proxyFile); err != nil {
			engineLog.Fatalf("Failed to load proxies: %v", err)
		}
	}
	if opts.proxyAPI != "" {
		client, err := NewHTTPClient(nil, "", false)
		if err != nil {
			engineLog.Fatalf("Failed to create proxy API client: %v", err)
		}
		if err := proxyManager.LoadFromAPI(client, opts.proxyAPI, GetProxyAPIKey()); err != nil {
			engineLog.Fatalf("Failed to fetch proxies: %v", err)
		}
	}

	if proxyManager.Count() > 0 {
		engineLog.Printf("Loaded %d proxies", proxyManager.Count())
	} else {
		engineLog.Printf("No proxies configured, connecting directly")
	}
	return proxyManager
}

func loadProfiles(opts cliOptions) *ProfileGenerator {
	profiles := NewProfileGenerator()
	if opts.userData != "" {
		if err := profiles.LoadUserData(opts.userData); err != nil {
			engineLog.Fatalf("Failed to load user data: %v", err)
		}
		engineLog.Printf("Loaded custom name pools from %s", opts.userData)
	}
	return profiles
}

func runBatch(opts cliOptions, cfg RunnerConfig, proxyManager *ProxyManager, store *AccountStore, profiles *ProfileGenerator, modLog *log.Logger) int {
	engineLog.Printf("Starting batch of %d accounts (sequential)...", opts.numAccounts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := newAccountRunner(cfg, proxyManager, &moduleLogger{logger: modLog})
	batch := NewBatchRunner(runner, profiles, store,
		time.Duration(opts.minDelay)*time.Second,
		time.Duration(opts.maxDelay)*time.Second,
		opts.resultsFile,
		&moduleLogger{logger: modLog})

	stats := batch.Run(ctx, opts.numAccounts)
	printSummary(stats)

	if stats.Success == 0 {
		return 1
	}
	return 0
}

func runConcurrent(opts cliOptions, cfg RunnerConfig, proxyManager *ProxyManager, store *AccountStore, profiles *ProfileGenerator, modLog *log.Logger) int {
	engineLog.Printf("Starting %d creation workers, %d verification workers (target: %d accounts, stagger: %v)...",
		opts.workers, opts.verifyWorkers, opts.numAccounts, workerStaggerDelay)

	scheduler := NewScheduler(cfg, opts.workers, opts.verifyWorkers, workerStaggerDelay,
		proxyManager, store, &moduleLogger{logger: modLog})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		engineLog.Printf("Interrupt received, shutting down...")
		scheduler.Shutdown()
	}()

	stats := BatchStats{Total: opts.numAccounts, StartTime: time.Now()}

	scheduler.Start(context.Background())

	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		for range opts.numAccounts {
			if !scheduler.Submit(profiles.Generate()) {
				return
			}
		}
	}()

	var done int
resultLoop:
	for done < opts.numAccounts {
		select {
		case result := <-scheduler.Results():
			done++
			if result.Success {
				stats.Success++
				if result.Verified {
					stats.Verified++
				}
				engineLog.Printf("[%d/%d] SUCCESS: %s (verified=%v)", done, opts.numAccounts, result.Email, result.Verified)
			} else {
				stats.Failed++
				engineLog.Printf("[%d/%d] FAILED: %v", done, opts.numAccounts, result.Error)
			}
		case <-scheduler.Done():
			break resultLoop
		}
	}

	<-producerDone
	scheduler.Close()

	fatalErr := scheduler.FatalErr()

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime).Minutes()
	printSummary(stats)

	if opts.resultsFile != "" {
		if err := WriteResults(opts.resultsFile, BatchResults{Stats: stats}); err != nil {
			engineLog.Printf("Failed to write results file: %v", err)
		}
	}

	if fatalErr != nil {
		engineLog.Printf("=== ABORTED: %d accounts created (fatal error: %v) ===", stats.Success, fatalErr)
		return 1
	}
	engineLog.Printf("=== Complete: %d accounts created ===", stats.Success)
	if stats.Success == 0 {
		return 1
	}
	return 0
}

func printSummary(stats BatchStats) {
	bold := color.New(color.Bold)
	bold.Println("\n=== Batch Summary ===")
	color.Cyan("Total:    %d", stats.Total)
	color.Green("Success:  %d", stats.Success)
	color.Green("Verified: %d", stats.Verified)
	color.Red("Failed:   %d", stats.Failed)
	color.White("Duration: %.1f minutes", stats.Duration)
}
