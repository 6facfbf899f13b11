// Command placesctl is a terminal front-end for the places API. Credentials
// (bearer tokens or session cookies, depending on the server) and the logged
// in user are kept in a local state file between runs.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"places-server/client"
	"places-server/logger"

	"github.com/spf13/cobra"
)

type app struct {
	apiURL    string
	statePath string
	verbose   bool
	lifetime  time.Duration
	lead      time.Duration
	in        io.Reader

	storage client.Storage
	api     *client.APIClient
	session *client.SessionManager
	auth    *client.AuthStore
	places  *client.PlacesStore
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".placesctl.json"
	}
	return filepath.Join(dir, "placesctl", "state.json")
}

// setup opens the state file and rehydrates the previous login, if any.
func (a *app) setup() error {
	if a.verbose {
		if err := logger.Initialize("debug", "console"); err != nil {
			return err
		}
	}

	storage, err := client.OpenFileStorage(a.statePath)
	if err != nil {
		return err
	}
	jar, err := client.NewPersistentJar(a.apiURL, storage)
	if err != nil {
		return err
	}

	a.storage = storage
	a.api = client.NewAPIClient(a.apiURL, storage,
		client.WithHTTPClient(&http.Client{Jar: jar, Timeout: 15 * time.Second}))
	a.session = client.NewSessionManager(client.SystemClock{}, a.lifetime, a.lead, storage, a.api)
	a.auth = client.NewAuthStore(a.api, storage, a.session)
	a.places = client.NewPlacesStore(a.api)
	a.auth.Restore()
	return nil
}

func (a *app) teardown() {
	if a.session != nil {
		a.session.Stop()
	}
	logger.Sync()
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "placesctl",
		Short:         "Share and browse places with friends",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.apiURL, "api", envOr("PLACES_API", "http://localhost:5001"), "places API base URL")
	flags.StringVar(&a.statePath, "state", envOr("PLACESCTL_STATE", defaultStatePath()), "path of the local state file")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log client activity to stderr")
	flags.DurationVar(&a.lifetime, "session-lifetime", client.DefaultLifetime, "access token lifetime used by watch")
	flags.DurationVar(&a.lead, "session-lead", client.DefaultLead, "how long before expiry watch asks to extend")

	root.AddCommand(
		newRegisterCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newRefreshCmd(a),
		newWhoamiCmd(a),
		newProfileCmd(a),
		newUsersCmd(a),
		newFriendsCmd(a),
		newPlacesCmd(a),
		newWatchCmd(a),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{in: os.Stdin}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describe(err))
		os.Exit(1)
	}
}

// describe turns client errors into a one-line message for the terminal.
func describe(err error) string {
	switch client.KindOf(err) {
	case client.KindUnauthorized:
		return err.Error() + " (run placesctl login)"
	default:
		return err.Error()
	}
}
