package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"room-status-backend/internal/model"
	"room-status-backend/internal/policy"
	"room-status-backend/internal/signing"
)

func (r *runner) qrURLsCmd() *cobra.Command {
	var baseURL, outPath string
	var allowLocal bool

	cmd := &cobra.Command{
		Use:   "qr-urls",
		Short: "Write signed form links for every room and role as CSV",
		Long: `Write one signed form link per room and role as CSV
(room_id,room_name,role,url), rooms ordered by name.

The base URL defaults to signing.base_url, then to this machine's LAN address
and the server port. Loopback hosts are refused unless --allow-local-only is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := r.runtime(cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			signer, err := signing.NewSigner(rt.Config.Signing.Secret)
			if err != nil {
				return fmt.Errorf("signing.secret must be set: %w", err)
			}
			if baseURL == "" {
				baseURL = rt.Config.Signing.BaseURL
			}
			if baseURL == "" {
				baseURL = fmt.Sprintf("http://%s:%d", signing.GuessReachableHost(), rt.Config.Server.Port)
			}
			if !cmd.Flags().Changed("allow-local-only") {
				allowLocal = rt.Config.Signing.AllowLocalOnly
			}
			if err := signing.ValidateBaseURL(baseURL, allowLocal); err != nil {
				return err
			}

			rooms, err := rt.Engine.ListRooms(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list rooms: %w", err)
			}

			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			roles := rt.Engine.Policy().Roles()
			if err := WriteFormLinks(out, signer, baseURL, rooms, roles); err != nil {
				return err
			}
			if outPath != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), success("Wrote %d links to %s", len(rooms)*len(roles), outPath))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Public base URL of the form server")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write CSV to this file instead of stdout")
	cmd.Flags().BoolVar(&allowLocal, "allow-local-only", false, "Allow loopback base URLs")

	return cmd
}

// WriteFormLinks writes the CSV of signed links, rooms ordered by name.
func WriteFormLinks(w io.Writer, signer *signing.Signer, baseURL string, rooms []model.Room, roles []policy.Role) error {
	sorted := make([]model.Room, len(rooms))
	copy(sorted, rooms)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"room_id", "room_name", "role", "url"}); err != nil {
		return err
	}
	for _, room := range sorted {
		for _, role := range roles {
			record := []string{
				strconv.FormatInt(room.ID, 10),
				room.Name,
				string(role),
				signer.FormURL(baseURL, room.ID, role),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
