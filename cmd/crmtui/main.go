package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wppcrm/internal/config"
	"github.com/matheus3301/wppcrm/internal/instance"
	"github.com/matheus3301/wppcrm/internal/lock"
	"github.com/matheus3301/wppcrm/internal/logging"
	"github.com/matheus3301/wppcrm/internal/normalize"
	"github.com/matheus3301/wppcrm/internal/prompt"
	"github.com/matheus3301/wppcrm/internal/realtime"
	"github.com/matheus3301/wppcrm/internal/tui"
	"github.com/matheus3301/wppcrm/internal/tui/client"
	"github.com/matheus3301/wppcrm/internal/tui/model"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance to auto-start when the daemon is local and down")
	configFlag := flag.String("config", "", "config file (default ~/.wppcrm/config.toml)")
	urlFlag := flag.String("url", "", "daemon base URL (overrides the session and client.base_url)")
	noStart := flag.Bool("no-start", false, "do not start a local daemon")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		configPath = instance.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		fail("%v", err)
	}
	name, err := instance.Resolve(*instanceFlag, cfg.DefaultInstance)
	if err != nil {
		fail("%v", err)
	}

	sess, err := config.LoadSession(instance.SessionPath())
	if err != nil {
		fail("load session: %v", err)
	}
	switch {
	case *urlFlag != "":
		sess.BaseURL = *urlFlag
	case sess.BaseURL == "":
		sess.BaseURL = cfg.Client.BaseURL
	}

	logger, err := logging.NewFileOnly(filepath.Join(instance.BaseDir(), "logs", "crmtui.log"), "crmtui")
	if err != nil {
		fail("open log: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	c := client.New(sess, 0)
	if !probeDaemon(c) {
		if *noStart || lock.Running(instance.Dir(name)) {
			fail("daemon at %s is not answering", sess.BaseURL)
		}
		fmt.Fprintf(os.Stderr, "daemon not running for instance %q, starting...\n", name)
		if err := startDaemon(name, configPath); err != nil {
			fail("failed to start daemon: %v", err)
		}
		if !waitForDaemon(c, 10*time.Second) {
			fail("daemon did not become ready")
		}
	}

	if !sess.LoggedIn() {
		if err := login(c); err != nil {
			fail("login: %v", err)
		}
	}

	vm := model.NewViewModel(c, model.Options{
		PollInterval: cfg.Client.PollInterval.Duration,
		Location:     cfg.Location(),
		AuthorName:   sess.User,
		SendTimeout:  cfg.Gateway.Timeout.Duration,
		Logger:       logger,
		Feed: func(onRow func(normalize.Row), onConnect func()) model.Feed {
			return realtime.NewSubscriber(sess.BaseURL, sess.Token, onRow, onConnect, logger)
		},
	})

	app := tui.NewApp(vm, c, tui.Options{User: sess.User, Logger: logger})
	if err := app.Run(); err != nil {
		logger.Error("tui exited", zap.Error(err))
		fail("%v", err)
	}
	if app.LoggedOut() {
		if err := config.ClearSession(instance.SessionPath()); err != nil {
			fail("clear session: %v", err)
		}
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func login(c *client.Client) error {
	p := prompt.New()
	email, err := p.Line("Email", "")
	if err != nil {
		return err
	}
	password, err := p.Password("Password")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), client.DefaultTimeout)
	defer cancel()
	if _, err := c.Login(ctx, email, password); err != nil {
		return err
	}
	return config.SaveSession(instance.SessionPath(), c.Session())
}

// probeDaemon checks that the daemon answers its health route.
func probeDaemon(c *client.Client) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Ping(ctx) == nil
}

func startDaemon(name, configPath string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	crmd := filepath.Join(filepath.Dir(executable), "crmd")
	if _, err := os.Stat(crmd); err != nil {
		crmd = "crmd"
	}

	cmd := exec.Command(crmd, "--instance", name, "--config", configPath)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

func waitForDaemon(c *client.Client, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if probeDaemon(c) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
