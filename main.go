package main

import (
	"context"
	"crypto/rand"
	"embed"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aehistory/history/config"
	"github.com/aehistory/history/eventlog"
	"github.com/aehistory/history/eventlog/memory"
	"github.com/aehistory/history/eventlog/postgres"
	"github.com/aehistory/history/eventlog/sqlite"
	"github.com/aehistory/history/markdown"
	"github.com/aehistory/history/nodetypes"

	"github.com/gorilla/csrf"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/kouhin/envflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yalue/merged_fs"
)

//go:generate go run ./resources

//go:embed static
var staticFS embed.FS

//go:embed templates
var embeddedTemplates embed.FS

var (
	listen        = flag.String("listen", ":8080", "Address to listen on")
	database      = flag.String("database", "sqlite:history.db", "Event store: sqlite:<path>, a postgres:// URL or memory")
	fixtures      = flag.String("fixtures", "", "YAML file of sites, domains, nodes and events to load at start")
	nodeTypesDir  = flag.String("node-types", "", "Directory of node type definitions")
	usersFile     = flag.String("users", "users.yml", "Users file")
	workDir       = flag.String("workdir", "./data", "Directory for encrypted settings")
	configKey     = flag.String("config-key", "", "Hex encoded 256 bit key used to encrypt settings")
	workspace     = flag.String("workspace", eventlog.LiveWorkspace, "Workspace to show the history of")
	timezone      = flag.String("timezone", "", "Time zone used to group events by day (default: local)")
	templatesDir  = flag.String("templates", "", "Directory of templates overriding the built in ones")
	title         = flag.String("title", "Content history", "Title shown on every page")
	secureCookies = flag.Bool("secure-cookies", false, "Only send cookies over HTTPS")
	codeStyle     = flag.String("code-style", "monokai", "Highlighting style for code in help messages")
)

func main() {
	err := envflag.Parse()
	if err != nil {
		log.Fatalf("Unable to parse flags: %s", err.Error())
	}

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, *database)
	if err != nil {
		log.Fatalf("Unable to open event store: %s", err.Error())
	}
	defer closeStore()

	if *fixtures != "" {
		if err := loadFixtures(ctx, store, *fixtures); err != nil {
			log.Fatalf("Unable to load fixtures: %s", err.Error())
		}
	}

	nodeTypes, err := nodetypes.LoadDir(*nodeTypesDir)
	if err != nil {
		log.Fatalf("Unable to load node types: %s", err.Error())
	}
	log.Printf("Loaded %d node types", len(nodeTypes.Names()))

	users, err := loadUsers(*usersFile)
	if err != nil {
		log.Fatalf("Unable to load users: %s", err.Error())
	}

	secrets, err := config.LoadSecrets(config.NewStore(config.DirBackend{Dir: *workDir}, *configKey))
	if err != nil {
		log.Fatalf("Unable to load secrets: %s", err.Error())
	}

	loc := time.Local
	if *timezone != "" {
		loc, err = time.LoadLocation(*timezone)
		if err != nil {
			log.Fatalf("Unknown time zone %s: %s", *timezone, err.Error())
		}
	}

	staticFiles, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatalf("Unable to get static folder: %s", err.Error())
	}

	templateFiles, err := loadTemplates(*templatesDir)
	if err != nil {
		log.Fatalf("Unable to get templates folder: %s", err.Error())
	}

	renderer := markdown.NewRenderer(&nodeChecker{nodes: store, workspace: *workspace}, *codeStyle)
	templates := NewTemplates(templateFiles, *title, currentVersion(), nodeTypes, renderer, loc)
	checker := &PermissionChecker{}
	metrics := NewMetrics()

	sessionStore := sessions.NewCookieStore(secrets.SessionKey)
	sessionStore.Options.Path = "/"
	sessionStore.Options.Secure = *secureCookies

	router := mux.NewRouter()
	router.Use(handlers.ProxyHeaders)
	router.Use(handlers.CompressHandler)
	router.Use(NewLoggingHandler(os.Stdout))
	router.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	router.Use(SessionHandler(users, checker, sessionStore))
	router.Use(PageErrorHandler(templates))

	router.Handle("/history", CountPageViews(metrics)(checker.RequireAccount(HistoryHandler(templates, store, nodeTypes, metrics, *workspace)))).Methods(http.MethodGet)
	router.Handle("/api/sites", checker.RequireAccount(ApiSitesHandler(store))).Methods(http.MethodGet)
	router.Handle("/login", LoginHandler(users)).Methods(http.MethodPost)
	router.Handle("/logout", LogoutHandler()).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.Handler())
	router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(staticFiles))))
	router.Handle("/", RedirectHandler("/history"))
	router.NotFoundHandler = SessionHandler(users, checker, sessionStore)(PageErrorHandler(templates)(http.NotFoundHandler()))

	csrfHandler := csrf.Protect(
		secrets.CsrfKey,
		csrf.Secure(*secureCookies),
		csrf.Path("/"),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("Rejected request without a valid CSRF token: %v", csrf.FailureReason(r))
			templates.RenderForbidden(w, r)
		})),
	)

	log.Printf("Starting server on %s.", *listen)
	server := http.Server{
		Addr:              *listen,
		Handler:           csrfHandler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Unable to start server: %s", err.Error())
		}
	}()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Unable to shutdown: %s", err.Error())
	}
	log.Print("Finishing server.")
}

// openStore opens the event store named by dsn.
func openStore(ctx context.Context, dsn string) (eventlog.Store, func(), error) {
	switch {
	case dsn == "memory":
		return memory.New(), func() {}, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		s, err := postgres.Connect(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := sqlite.Open(strings.TrimPrefix(dsn, "sqlite:"))
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
}

func loadFixtures(ctx context.Context, w eventlog.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return eventlog.LoadFixtures(ctx, w, f)
}

// loadUsers reads the users file, creating it with an admin account if it
// has no users.
func loadUsers(path string) (*config.UserManager, error) {
	users, err := config.LoadUsersFile(path)
	if err != nil {
		return nil, err
	}
	if !users.Empty() {
		return users, nil
	}

	password, err := randomPassword()
	if err != nil {
		return nil, err
	}
	if err := users.AddUser("admin", password, []string{config.EverySite}); err != nil {
		return nil, err
	}
	if err := users.SaveFile(path); err != nil {
		log.Printf("Unable to save users file, the admin password will change on restart: %v", err)
	}
	log.Printf("Created user admin with password %s", password)
	return users, nil
}

func randomPassword() (string, error) {
	b := make([]byte, 12)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("unable to generate password: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// loadTemplates returns the built in templates, with files from dir taking
// precedence when dir is set.
func loadTemplates(dir string) (fs.FS, error) {
	embedded, err := fs.Sub(embeddedTemplates, "templates")
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return embedded, nil
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	return merged_fs.NewMergedFS(os.DirFS(dir), embedded), nil
}
