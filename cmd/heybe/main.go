package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/enessayaci/heybe/internal/bridge"
	"github.com/enessayaci/heybe/internal/domain"
	"github.com/enessayaci/heybe/internal/page"
	apiclient "github.com/enessayaci/heybe/pkg/api/client"
	"github.com/enessayaci/heybe/pkg/config"
	"github.com/enessayaci/heybe/pkg/logger"
)

type cliConfig struct {
	APIBaseURL string `json:"api_base_url"`
	Token      string `json:"token"`
	GuestToken string `json:"guest_token"`
}

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "guest":
		err = commandGuest(args)
	case "register":
		err = commandRegister(args)
	case "login":
		err = commandLogin(args)
	case "items":
		err = commandItems(args)
	case "session":
		err = commandSession(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// commandGuest provisions an anonymous identity and caches its token, the
// same thing the browser extension does on first load.
func commandGuest(args []string) error {
	fs := flag.NewFlagSet("guest", flag.ExitOnError)
	apiBase := fs.String("api", "", "API base URL (default http://localhost:4000)")
	fs.Parse(args)

	cfg, _ := loadConfig()
	applyAPIBase(&cfg, *apiBase)

	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sess, err := client.CreateGuest(ctx)
	if err != nil {
		return err
	}
	cfg.GuestToken = sess.Token
	cfg.Token = sess.Token
	if err := saveConfig(cfg); err != nil {
		return err
	}
	storeSession(sess)
	fmt.Println("guest session created")
	return nil
}

// commandRegister registers a permanent account. When a guest token is
// cached, the guest's items are claimed as part of registration.
func commandRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default http://localhost:4000)")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := resolvePassword(*password)
	if err != nil {
		return err
	}

	cfg, _ := loadConfig()
	applyAPIBase(&cfg, *apiBase)

	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var sess apiclient.SessionPayload
	if guest := strings.TrimSpace(cfg.GuestToken); guest != "" {
		sess, err = client.RegisterWithTransfer(ctx, guest, *email, secret)
	} else {
		sess, err = client.Register(ctx, *email, secret)
	}
	if err != nil {
		return err
	}
	cfg.Token = sess.Token
	cfg.GuestToken = ""
	if err := saveConfig(cfg); err != nil {
		return err
	}
	storeSession(sess)
	fmt.Println("registration successful")
	return nil
}

// commandLogin authenticates a permanent account, claiming any cached guest
// session's items.
func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default http://localhost:4000)")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := resolvePassword(*password)
	if err != nil {
		return err
	}

	cfg, _ := loadConfig()
	applyAPIBase(&cfg, *apiBase)

	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var sess apiclient.SessionPayload
	if guest := strings.TrimSpace(cfg.GuestToken); guest != "" {
		sess, err = client.LoginWithTransfer(ctx, guest, *email, secret)
	} else {
		sess, err = client.Login(ctx, *email, secret)
	}
	if err != nil {
		return err
	}
	cfg.Token = sess.Token
	cfg.GuestToken = ""
	if err := saveConfig(cfg); err != nil {
		return err
	}
	storeSession(sess)
	fmt.Println("login successful")
	return nil
}

func commandItems(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: heybe items [list|save|delete]")
	}
	sub := args[0]
	switch sub {
	case "list":
		return itemsList(args[1:])
	case "save":
		return itemsSave(args[1:])
	case "delete":
		return itemsDelete(args[1:])
	default:
		return fmt.Errorf("unknown items command: %s", sub)
	}
}

func itemsList(args []string) error {
	fs := flag.NewFlagSet("items list", flag.ExitOnError)
	limit := fs.Int("limit", 0, "Maximum number of items to display")
	fs.Parse(args)

	_, client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	items, err := client.ListItems(ctx, token)
	if err != nil {
		return err
	}
	count := len(items)
	if *limit > 0 && *limit < count {
		count = *limit
	}
	for i := 0; i < count; i++ {
		it := items[i]
		fmt.Printf("%s\t%s\t%s\t%s\n", it.ID, it.Name, it.Price, it.SourceURL)
	}
	return nil
}

func itemsSave(args []string) error {
	fs := flag.NewFlagSet("items save", flag.ExitOnError)
	name := fs.String("name", "", "Product name")
	price := fs.String("price", "", "Display price")
	sourceURL := fs.String("url", "", "Product page URL")
	site := fs.String("site", "", "Source site name")
	fs.Parse(args)

	if strings.TrimSpace(*name) == "" || strings.TrimSpace(*sourceURL) == "" {
		return errors.New("--name and --url are required")
	}

	_, client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	saved, err := client.SaveItem(ctx, token, apiclient.ItemPayload{
		Name:      *name,
		Price:     *price,
		SourceURL: *sourceURL,
		Site:      *site,
	})
	if err != nil {
		return err
	}
	fmt.Printf("saved %s\n", saved.ID)
	return nil
}

func itemsDelete(args []string) error {
	fs := flag.NewFlagSet("items delete", flag.ExitOnError)
	itemID := fs.String("id", "", "Item identifier")
	fs.Parse(args)
	if strings.TrimSpace(*itemID) == "" {
		return errors.New("--id is required")
	}

	_, client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.DeleteItem(ctx, token, *itemID); err != nil {
		return err
	}
	fmt.Println("item deleted")
	return nil
}

// commandSession drives the local session state the way a page context does:
// probe the bridge, reconcile, or log out.
func commandSession(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: heybe session [sync|show|logout]")
	}
	switch args[0] {
	case "sync":
		return sessionSync()
	case "show":
		return sessionShow()
	case "logout":
		return sessionLogout()
	default:
		return fmt.Errorf("unknown session command: %s", args[0])
	}
}

func sessionSync() error {
	r, shutdown, err := openSession()
	if err != nil {
		return err
	}
	defer shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	state := r.Sync(ctx)
	fmt.Printf("bridge: %s\n", state)
	printRecord(r.Current())
	return nil
}

func sessionShow() error {
	r, shutdown, err := openSession()
	if err != nil {
		return err
	}
	defer shutdown()
	printRecord(r.Current())
	return nil
}

func sessionLogout() error {
	r, shutdown, err := openSession()
	if err != nil {
		return err
	}
	defer shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	r.Logout(ctx)

	cfg, err := loadConfig()
	if err == nil {
		cfg.Token = ""
		cfg.GuestToken = ""
		err = saveConfig(cfg)
	}
	if err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

// openSession assembles the bridge store, its message loop and a reconciler
// over page-local state.
func openSession() (*page.Reconciler, func(), error) {
	cfg := config.LoadBridgeConfig()
	log := logger.New("heybe-cli", logger.ParseLevel(config.GetString("LOG_LEVEL", "error")))

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve home dir: %w", err)
	}
	storePath := cfg.StorePath
	if storePath == "heybe-bridge.db" {
		storePath = filepath.Join(home, ".heybe", "bridge.db")
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0o700); err != nil {
		return nil, nil, err
	}
	store, err := bridge.OpenStore(storePath, cfg.StorageSecret)
	if err != nil {
		return nil, nil, err
	}
	b := bridge.New(store, log)
	conn := bridge.NewConn(b)

	local := page.NewFileStore(filepath.Join(home, ".heybe", "session.json"))
	r := page.NewReconciler(conn, local, log)
	r.Probe().FirstDeadline = cfg.ProbeFirstDeadline
	r.Probe().PollInterval = cfg.ProbeInterval
	r.Probe().MaxAttempts = cfg.ProbeMaxAttempts

	shutdown := func() {
		b.Stop()
		store.Close()
	}
	return r, shutdown, nil
}

// storeSession propagates a fresh session into page-local state and,
// best-effort, into the bridge store.
func storeSession(sess apiclient.SessionPayload) {
	r, shutdown, err := openSession()
	if err != nil {
		return
	}
	defer shutdown()

	record := domain.StorageRecord{Token: sess.Token}
	if sess.User != nil {
		record.User = &domain.UserProfile{ID: sess.User.ID, Email: sess.User.Email, Guest: sess.User.Guest}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.Store(ctx, record)
}

func printRecord(record domain.StorageRecord) {
	if record.Empty() {
		fmt.Println("no session")
		return
	}
	if record.User != nil {
		kind := "user"
		if record.User.Guest {
			kind = "guest"
		}
		fmt.Printf("%s: %s (%s)\n", kind, record.User.Email, record.User.ID)
	}
	if record.Token != "" {
		fmt.Println("token: present")
	}
}

func authedClient() (cliConfig, *apiclient.Client, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cliConfig{}, nil, "", err
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return cliConfig{}, nil, "", errors.New("please login first using 'heybe login'")
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return cliConfig{}, nil, "", err
	}
	return cfg, client, token, nil
}

func resolvePassword(flagValue string) (string, error) {
	secret := strings.TrimSpace(flagValue)
	if secret != "" {
		return secret, nil
	}
	fmt.Print("Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

func applyAPIBase(cfg *cliConfig, override string) {
	if strings.TrimSpace(override) != "" {
		cfg.APIBaseURL = override
	} else if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:4000"
	}
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: "http://localhost:4000"}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:4000"
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".heybe", "config.json"), nil
}

func printUsage() {
	fmt.Println(`heybe <command>

Commands:
  guest                    Create an anonymous guest session
  register --email <addr>  Register a permanent account (claims guest items)
  login --email <addr>     Log in (claims guest items)
  items list               List saved items
  items save --name --url  Save an item
  items delete --id <id>   Delete a saved item
  session sync             Reconcile local session state with the bridge store
  session show             Print the current session
  session logout           Clear local session state, then the bridge store
  version                  Print version`)
}

func printVersion() {
	fmt.Printf("heybe %s\n", buildVersion)
}
