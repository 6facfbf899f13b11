package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"places-server/client"
	"places-server/models"

	"github.com/spf13/cobra"
)

var errNotLoggedIn = &client.Error{Kind: client.KindUnauthorized, Message: "not logged in"}

func (a *app) requireLogin() (*models.User, error) {
	st := a.auth.State()
	if !st.IsAuthenticated || st.User == nil {
		return nil, errNotLoggedIn
	}
	return st.User, nil
}

func newRegisterCmd(a *app) *cobra.Command {
	var in client.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.auth.Register(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and logged in as %s (%s)\n", u.Username, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in.Username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&in.Password, "password", "p", "", "password")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login USERNAME",
		Short: "Log in and remember the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Password: ")
				line, err := bufio.NewReader(a.in).ReadString('\n')
				if err != nil && err != io.EOF {
					return err
				}
				password = strings.TrimRight(line, "\r\n")
			}
			u, err := a.auth.Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", u.Username, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password, read from stdin when omitted")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and forget local credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.auth.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

// newRefreshCmd trades the stored refresh token for a new access token. The
// access token is short lived, so this is usually needed after a pause.
func newRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Renew the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.requireLogin(); err != nil {
				return err
			}
			if err := a.session.Extend(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Session refreshed")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := a.auth.State()
			if !st.IsAuthenticated {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			printUser(cmd.OutOrStdout(), st.User)
			return nil
		},
	}
}

func newProfileCmd(a *app) *cobra.Command {
	var upd models.ProfileUpdate
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Edit your name, email or avatar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.requireLogin(); err != nil {
				return err
			}
			u, err := a.auth.UpdateProfile(cmd.Context(), upd)
			if err != nil {
				return err
			}
			printUser(cmd.OutOrStdout(), u)
			return nil
		},
	}
	cmd.Flags().StringVar(&upd.Name, "name", "", "display name")
	cmd.Flags().StringVar(&upd.Email, "email", "", "email address")
	cmd.Flags().StringVar(&upd.Avatar, "avatar", "", "avatar URL")
	return cmd
}

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Browse the user directory",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List every user",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				users, err := a.auth.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				printUsers(cmd.OutOrStdout(), users)
				return nil
			},
		},
		&cobra.Command{
			Use:   "search QUERY",
			Short: "Find users by username or name",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				users, err := a.auth.SearchUsers(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printUsers(cmd.OutOrStdout(), users)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show ID",
			Short: "Show one user",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				u, err := a.auth.GetUserByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printUser(cmd.OutOrStdout(), u)
				return nil
			},
		},
	)
	return cmd
}

func newFriendsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "friends",
		Short: "Manage your friends",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List your friends",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				me, err := a.requireLogin()
				if err != nil {
					return err
				}
				directory, err := a.auth.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				printUsers(cmd.OutOrStdout(), client.FriendsOf(me, directory))
				return nil
			},
		},
		&cobra.Command{
			Use:   "add ID",
			Short: "Add a friend by user id",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := a.requireLogin(); err != nil {
					return err
				}
				u, err := a.auth.AddFriend(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "You now have %d friend(s)\n", len(u.Friends))
				return nil
			},
		},
		&cobra.Command{
			Use:   "add-by-username USERNAME",
			Short: "Add a friend by username",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := a.requireLogin(); err != nil {
					return err
				}
				f, err := a.auth.AddFriendByUsername(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s) as a friend\n", f.Username, f.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove ID",
			Short: "Remove a friend",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := a.requireLogin(); err != nil {
					return err
				}
				u, err := a.auth.RemoveFriend(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "You now have %d friend(s)\n", len(u.Friends))
				return nil
			},
		},
	)
	return cmd
}

// loadPlaces binds the places cache to the login for the duration of one
// command and returns what it fetched.
func (a *app) loadPlaces(ctx context.Context) (*models.User, []models.Place, error) {
	me, err := a.requireLogin()
	if err != nil {
		return nil, nil, err
	}
	unbind := a.places.BindAuth(ctx, a.auth)
	defer unbind()

	snap := a.places.Snapshot()
	if snap.Err != nil {
		return nil, nil, snap.Err
	}
	return me, snap.Places, nil
}

type placeFlags struct {
	in models.PlaceInput
}

func (f *placeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.in.Name, "name", "", "place name")
	cmd.Flags().StringVar(&f.in.Description, "description", "", "description")
	cmd.Flags().StringVar(&f.in.Location, "location", "", "location")
	cmd.Flags().Float64Var(&f.in.Rating, "rating", 0, "rating, above 0 and at most 5")
	cmd.Flags().StringVar(&f.in.Image, "image", "", "image URL")
}

func newPlacesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "places",
		Short: "Browse and share places",
	}

	list := func(filter func(me *models.User, places []models.Place, args []string) []models.Place) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			me, places, err := a.loadPlaces(cmd.Context())
			if err != nil {
				return err
			}
			printPlaces(cmd.OutOrStdout(), filter(me, places, args))
			return nil
		}
	}

	var add placeFlags
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Share a new place",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := a.loadPlaces(cmd.Context()); err != nil {
				return err
			}
			p, err := a.places.AddPlace(cmd.Context(), add.in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created place %s (%s)\n", p.Name, p.ID)
			return nil
		},
	}
	add.register(addCmd)

	var edit placeFlags
	editCmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Edit one of your places",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, places, err := a.loadPlaces(cmd.Context())
			if err != nil {
				return err
			}
			var place *models.Place
			for i := range places {
				if places[i].ID == args[0] {
					place = &places[i]
				}
			}
			if place == nil {
				return &client.Error{Kind: client.KindNotFound, Message: "place " + args[0] + " not found"}
			}
			applyPlaceEdits(place, edit.in)
			p, err := a.places.UpdatePlace(cmd.Context(), *place)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated place %s (%s)\n", p.Name, p.ID)
			return nil
		},
	}
	edit.register(editCmd)

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List every place you can see",
			Args:  cobra.NoArgs,
			RunE: list(func(_ *models.User, places []models.Place, _ []string) []models.Place {
				return places
			}),
		},
		&cobra.Command{
			Use:   "mine",
			Short: "List your places",
			Args:  cobra.NoArgs,
			RunE: list(func(me *models.User, places []models.Place, _ []string) []models.Place {
				return client.MyPlaces(places, me)
			}),
		},
		&cobra.Command{
			Use:   "of USER_ID",
			Short: "List the places of a friend",
			Args:  cobra.ExactArgs(1),
			RunE: list(func(_ *models.User, places []models.Place, args []string) []models.Place {
				return client.FriendPlaces(places, args[0])
			}),
		},
		&cobra.Command{
			Use:   "counts",
			Short: "Count places per owner",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				_, places, err := a.loadPlaces(cmd.Context())
				if err != nil {
					return err
				}
				counts := client.PlaceCountByOwner(places)
				owners := make([]string, 0, len(counts))
				for owner := range counts {
					owners = append(owners, owner)
				}
				sort.Strings(owners)

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "OWNER\tPLACES")
				for _, owner := range owners {
					fmt.Fprintf(tw, "%s\t%d\n", owner, counts[owner])
				}
				return tw.Flush()
			},
		},
		addCmd,
		editCmd,
		&cobra.Command{
			Use:   "delete ID",
			Short: "Delete one of your places",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, _, err := a.loadPlaces(cmd.Context()); err != nil {
					return err
				}
				if err := a.places.DeletePlace(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted place %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func applyPlaceEdits(p *models.Place, in models.PlaceInput) {
	if in.Name != "" {
		p.Name = in.Name
	}
	if in.Description != "" {
		p.Description = in.Description
	}
	if in.Location != "" {
		p.Location = in.Location
	}
	if in.Rating != 0 {
		p.Rating = in.Rating
	}
	if in.Image != "" {
		p.Image = in.Image
	}
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the session open and ask before it expires",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := a.requireLogin()
			if err != nil {
				return err
			}
			return a.watch(cmd.Context(), cmd.OutOrStdout(), me)
		},
	}
}

// watch restarts the session timers and answers each warning from the input
// until the session ends or ctx is cancelled.
func (a *app) watch(ctx context.Context, out io.Writer, me *models.User) error {
	warnings := make(chan struct{}, 1)
	expired := make(chan client.ExpiryReason, 1)
	a.session.OnWarning(func() {
		select {
		case warnings <- struct{}{}:
		default:
		}
	})
	a.session.OnExpired(func(r client.ExpiryReason) {
		select {
		case expired <- r:
		default:
		}
	})

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(a.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	a.session.Start()
	fmt.Fprintf(out, "Watching session of %s. Press Ctrl-C to stop.\n", me.Username)

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-expired:
			fmt.Fprintf(out, "Session ended (%s)\n", r)
			return nil
		case <-warnings:
		}

		fmt.Fprintf(out, "Your session expires in %s. Stay logged in? [y/N] ", a.lead)
		select {
		case <-ctx.Done():
			return nil
		case r := <-expired:
			fmt.Fprintf(out, "\nSession ended (%s)\n", r)
			return nil
		case line, ok := <-lines:
			if !ok || !isYes(line) {
				a.session.Decline()
				continue
			}
			if err := a.session.Extend(ctx); err != nil {
				fmt.Fprintf(out, "Could not extend the session: %s\n", describe(err))
				continue
			}
			fmt.Fprintln(out, "Session extended")
		}
	}
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	}
	return false
}

func printUser(w io.Writer, u *models.User) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", u.ID)
	fmt.Fprintf(tw, "Username:\t%s\n", u.Username)
	fmt.Fprintf(tw, "Name:\t%s\n", u.Name)
	fmt.Fprintf(tw, "Email:\t%s\n", u.Email)
	fmt.Fprintf(tw, "Avatar:\t%s\n", u.Avatar)
	fmt.Fprintf(tw, "Friends:\t%d\n", len(u.Friends))
	_ = tw.Flush()
}

func printUsers(w io.Writer, users []models.User) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tNAME\tFRIENDS")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", u.ID, u.Username, u.Name, len(u.Friends))
	}
	_ = tw.Flush()
}

func printPlaces(w io.Writer, places []models.Place) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLOCATION\tRATING\tOWNER")
	for _, p := range places {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%s\n", p.ID, p.Name, p.Location, p.Rating, p.UserID)
	}
	_ = tw.Flush()
}
