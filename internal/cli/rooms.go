package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"chat-client/internal/api"
	"chat-client/internal/config"
	"chat-client/internal/logging"
	"chat-client/internal/models"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the rooms visible to the configured user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRoomAPI(cmd, func(ctx context.Context, rooms roomAPI) error {
			list, err := rooms.ListRooms(ctx)
			if err != nil {
				return fmt.Errorf("list rooms: %w", err)
			}
			return printRooms(cmd.OutOrStdout(), list)
		})
	},
}

var roomsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Open a room with the given members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		members, err := cmd.Flags().GetStringSlice("member")
		if err != nil {
			return err
		}
		subject, err := cmd.Flags().GetString("subject")
		if err != nil {
			return err
		}
		return withRoomAPI(cmd, func(ctx context.Context, rooms roomAPI) error {
			return createRoom(ctx, rooms, api.CreateRoomRequest{
				Name:      args[0],
				SubjectID: models.ID(subject),
				Members:   members,
			}, cmd.OutOrStdout())
		})
	},
}

var roomsCloseCmd = &cobra.Command{
	Use:   "close <room-id>",
	Short: "Close a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRoomAPI(cmd, func(ctx context.Context, rooms roomAPI) error {
			return closeRoom(ctx, rooms, models.ID(args[0]), cmd.OutOrStdout())
		})
	},
}

func init() {
	roomsCreateCmd.Flags().StringSlice("member", nil, "user id to add (repeatable)")
	roomsCreateCmd.Flags().String("subject", "", "id of the listing the room is about")
	roomsCmd.AddCommand(roomsCreateCmd, roomsCloseCmd)
	rootCmd.AddCommand(roomsCmd)
}

// roomAPI is the part of the REST client the rooms commands use.
type roomAPI interface {
	ListRooms(ctx context.Context) ([]models.ChatRoom, error)
	CreateRoom(ctx context.Context, req api.CreateRoomRequest) (models.ChatRoom, error)
	CloseRoom(ctx context.Context, roomID models.ID) error
}

func withRoomAPI(cmd *cobra.Command, run func(ctx context.Context, rooms roomAPI) error) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	logger := logging.New()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	deps, err := newClientDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	return run(ctx, deps.api)
}

func createRoom(ctx context.Context, rooms roomAPI, req api.CreateRoomRequest, out io.Writer) error {
	room, err := rooms.CreateRoom(ctx, req)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	_, err = fmt.Fprintf(out, "created room %s (%s)\n", room.ID, room.Name)
	return err
}

func closeRoom(ctx context.Context, rooms roomAPI, roomID models.ID, out io.Writer) error {
	if err := rooms.CloseRoom(ctx, roomID); err != nil {
		return fmt.Errorf("close room %s: %w", roomID, err)
	}
	_, err := fmt.Fprintf(out, "closed room %s\n", roomID)
	return err
}

func printRooms(out io.Writer, rooms []models.ChatRoom) error {
	if len(rooms) == 0 {
		_, err := fmt.Fprintln(out, "no rooms")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tUNREAD\tSTATUS")
	for _, r := range rooms {
		status := r.Status
		if status == "" {
			status = models.RoomOpen
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.ID, r.Name, r.UnreadCount, status)
	}
	return w.Flush()
}
