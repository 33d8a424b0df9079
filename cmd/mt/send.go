package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"pkt.systems/mounttab/httpapi"
	"pkt.systems/mounttab/schema"
	"pkt.systems/pslog"
)

func newSendCmd() *cobra.Command {
	var addr string
	var path string
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "send open|close URL",
		Short: "Send one action to a running engine over its socket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := actionFromArgs(args[0], args[1])
			if err != nil {
				return err
			}
			return sendAction(cmd.Context(), cmd, addr, path, action, wait)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", httpapi.DefaultAddr, "engine socket address")
	cmd.Flags().StringVar(&path, "path", httpapi.DefaultPath, "websocket path")
	cmd.Flags().DurationVar(&wait, "wait", 0, "keep printing received actions for this long")
	return cmd
}

func actionFromArgs(verb, target string) (schema.Action, error) {
	var action schema.Action
	switch verb {
	case "open":
		action = schema.OpenTab(schema.NormalizeURL(target))
	case "close":
		action = schema.CloseTab(schema.NormalizeURL(target))
	default:
		return schema.Action{}, fmt.Errorf("unknown action %q (want open or close)", verb)
	}
	if err := action.Validate(); err != nil {
		return schema.Action{}, err
	}
	return action, nil
}

func sendAction(ctx context.Context, cmd *cobra.Command, addr, path string, action schema.Action, wait time.Duration) error {
	logger := pslog.Ctx(ctx)
	endpoint := url.URL{Scheme: "ws", Host: addr, Path: path}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint.String(), err)
	}
	defer conn.Close()

	data, err := json.Marshal(action)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	logger.Debug("send action written", "action", action.String(), "addr", addr)

	if wait > 0 {
		deadline := time.Now().Add(wait)
		out := cmd.OutOrStdout()
		for {
			_ = conn.SetReadDeadline(deadline)
			_, msg, err := conn.ReadMessage()
			if err != nil {
				var netErr interface{ Timeout() bool }
				if errors.As(err, &netErr) && netErr.Timeout() {
					break
				}
				return err
			}
			if _, err := fmt.Fprintln(out, string(msg)); err != nil {
				return err
			}
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return nil
}
