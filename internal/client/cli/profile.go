package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/stuffhappens/internal/client/models"
)

// Profile prompts for a new display name and avatar URL. Empty answers keep
// the current value.
func (a *App) Profile(ctx context.Context) error {
	u := a.store.User()
	if u == nil {
		return a.report(errNotLoggedIn)
	}

	name, err := getSimpleText(a.reader, fmt.Sprintf("Display name [%s]", u.Name), a.out)
	if err != nil {
		return err
	}
	avatar, err := getSimpleText(a.reader, "Avatar URL [keep]", a.out)
	if err != nil {
		return err
	}

	var update models.ProfileUpdate
	if name != "" {
		update.FullName = &name
	}
	if avatar != "" {
		update.AvatarURL = &avatar
	}
	if update.IsEmpty() {
		fmt.Fprintln(a.out, "Nothing to update.")
		return nil
	}

	if err := a.store.UpdateProfile(ctx, update); err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, "Profile updated.")
	return nil
}

// Avatar uploads the picture at path and makes it the user's avatar.
func (a *App) Avatar(ctx context.Context, path string) error {
	u := a.store.User()
	if u == nil {
		return a.report(errNotLoggedIn)
	}
	if a.uploader == nil {
		fmt.Fprintln(a.out, "Avatar uploads are not configured.")
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return a.report(err)
	}
	defer f.Close()

	url, err := a.uploader.Upload(ctx, u.ID, filepath.Base(path), f)
	if err != nil {
		return a.report(err)
	}

	if err := a.store.UpdateProfile(ctx, models.ProfileUpdate{AvatarURL: &url}); err != nil {
		return a.report(err)
	}
	fmt.Fprintf(a.out, "Avatar set to %s\n", url)
	return nil
}
