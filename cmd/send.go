package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/mrcp/client"
	"github.com/luma/mrcp/internal/env"
	"github.com/luma/mrcp/protocol"
	"github.com/luma/mrcp/storage"
)

var (
	sendFlags struct {
		host        string
		port        int
		channelID   string
		method      string
		headers     []string
		contentType string
		content     string
		bodyFile    string
		untilEvent  string
		follow      bool
	}
)

func init() {
	flags := SendCmd.Flags()

	flags.StringVarP(&sendFlags.host, "host", "a", "", "The MRCP server host, defaults to MRCP_HOST")
	flags.IntVarP(&sendFlags.port, "port", "p", 0, "The MRCP server port, defaults to MRCP_PORT")
	flags.StringVarP(&sendFlags.channelID, "channel", "c", "", "The Channel-Identifier, defaults to MRCP_CHANNEL_ID")
	flags.StringVarP(&sendFlags.method, "method", "m", string(protocol.GetParams), "The request method")
	flags.StringArrayVarP(&sendFlags.headers, "header", "H", nil, "A request header as 'Name: value', can be repeated")
	flags.StringVar(&sendFlags.contentType, "content-type", "text/plain", "The Content-Type of the request body")
	flags.StringVarP(&sendFlags.content, "content", "d", "", "The request body")
	flags.StringVar(&sendFlags.bodyFile, "body-file", "", "Read the request body from this file, - for stdin")
	flags.StringVarP(&sendFlags.untilEvent, "until-event", "e", "", "Wait for this event to COMPLETE before exiting")
	flags.BoolVarP(&sendFlags.follow, "follow", "f", false, "Print journal updates as they happen")
}

var SendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one MRCP request and print the exchange",
	Long: `Send one MRCP request on a negotiated channel and print the exchange

Usage
	mrcpctl send -c 32AECB23433801@speechsynth -m SPEAK \
		-H 'Voice-Name: Ingrid' --content-type application/ssml+xml \
		--body-file hello.ssml --until-event SPEAK-COMPLETE

The journal of every request, response and event is printed as JSON when the
command finishes.
`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conf, log, err := setup(ctx)
		if err != nil {
			return err
		}
		defer log.Sync() // nolint: errcheck

		applySendFlags(cmd, conf)

		if conf.ChannelID == "" {
			return errors.New("No channel given, set --channel or MRCP_CHANNEL_ID")
		}

		journal := storage.NewInmemoryStore(storage.WithMaxExchanges(conf.JournalMaxExchanges))
		defer func() {
			err = multierr.Append(err, printJournal(cmd.OutOrStdout(), journal))
			err = multierr.Append(err, journal.Close())
		}()

		if sendFlags.follow {
			go followJournal(cmd.ErrOrStderr(), journal.ListenToUpdates())
		}

		options := conf.TransportOptions()
		options.Log = log.Named("transport")

		provider := client.NewProvider(options,
			client.WithJournal(journal),
			client.WithResponseTimeout(conf.ResponseTimeout))
		defer func() {
			err = multierr.Append(err, provider.Close())
		}()

		channel, err := provider.CreateChannel(ctx, conf.ChannelID, conf.Host, conf.Port)
		if err != nil {
			return err
		}

		req, err := buildRequest(channel, sendFlags.method, sendFlags.headers)
		if err != nil {
			return err
		}

		if err := attachBody(cmd.InOrStdin(), req); err != nil {
			return err
		}

		var completed <-chan *protocol.Event
		if sendFlags.untilEvent != "" {
			completed = awaitEvent(channel, req.RequestID, protocol.EventName(strings.ToUpper(sendFlags.untilEvent)))
		}

		resp, err := channel.SendRequest(ctx, req)
		if err != nil {
			return err
		}

		log.Info("Request accepted",
			zap.Stringer("requestID", resp.RequestID),
			zap.Int("status", resp.StatusCode),
			zap.String("state", string(resp.State)))

		if completed == nil || resp.State.IsTerminal() {
			return nil
		}

		select {
		case event := <-completed:
			log.Info("Request complete", zap.Stringer("event", event))
			return nil

		case <-ctx.Done():
			return ctx.Err()
		}
	},
}

func applySendFlags(cmd *cobra.Command, conf *env.Config) {
	flags := cmd.Flags()

	if flags.Changed("host") {
		conf.Host = sendFlags.host
	}
	if flags.Changed("port") {
		conf.Port = sendFlags.port
	}
	if flags.Changed("channel") {
		conf.ChannelID = sendFlags.channelID
	}
}

func buildRequest(channel *client.Channel, method string, headers []string) (*protocol.Request, error) {
	req := channel.CreateRequest(protocol.MethodName(strings.ToUpper(method)))

	for _, line := range headers {
		i := strings.Index(line, ":")
		if i < 1 {
			return nil, fmt.Errorf("Invalid header %q, expected 'Name: value'", line)
		}

		header, err := protocol.CreateHeader(strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]))
		if err != nil {
			return nil, err
		}

		req.AddHeader(header)
	}

	return req, nil
}

func attachBody(stdin io.Reader, req *protocol.Request) error {
	content := sendFlags.content

	switch sendFlags.bodyFile {
	case "":
	case "-":
		body, err := io.ReadAll(stdin)
		if err != nil {
			return err
		}
		content = string(body)

	default:
		body, err := os.ReadFile(sendFlags.bodyFile)
		if err != nil {
			return err
		}
		content = string(body)
	}

	if content != "" {
		req.SetContent(sendFlags.contentType, "", content)
	}

	return nil
}

// awaitEvent returns a channel that receives the COMPLETE event called name
// for requestID.
func awaitEvent(channel *client.Channel, requestID protocol.RequestID, name protocol.EventName) <-chan *protocol.Event {
	completed := make(chan *protocol.Event, 1)

	var remove func()
	remove = channel.AddEventListener(client.EventListenerFunc(func(event *protocol.Event) {
		if event.RequestID != requestID || event.Name != name || event.State != protocol.StateComplete {
			return
		}

		completed <- event
		remove()
	}))

	return completed
}

func followJournal(w io.Writer, updates <-chan *storage.Update) {
	for update := range updates {
		fmt.Fprintf(w, "%s %s\n", update.Key, update.Value)
	}
}

func printJournal(w io.Writer, journal storage.Store) error {
	backup, err := journal.Backup()
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, gjson.GetBytes(backup, "@pretty").Raw)
	return err
}
