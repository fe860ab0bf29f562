package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"

	gojwt "github.com/golang-jwt/jwt/v5"

	"golang.org/x/term"

	"statelink.io/dobj/dobj"
	"statelink.io/dobj/rooms"
)

const DobjCtlVersion = "0.1.0"

const DefaultUrl = "ws://127.0.0.1:8080/data"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Distributed object control.

Usage:
    dobjctl watch [--url=<url>] --user=<user_id> [--token=<token>] <room>
    dobjctl post [--url=<url>] --user=<user_id> [--token=<token>] <room> <message>
    dobjctl token --user=<user_id> [--secret=<secret>]

Options:
    -h --help            Show this screen.
    --version            Show version.
    --url=<url>          Server url [default: ws://127.0.0.1:8080/data].
    --user=<user_id>     User id.
    --token=<token>      Auth token.
    --secret=<secret>    HMAC secret for minting a dev token.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], DobjCtlVersion)
	if err != nil {
		panic(err)
	}

	flag.Set("logtostderr", "true")
	flag.Parse()

	if watch_, _ := opts.Bool("watch"); watch_ {
		watch(opts)
	} else if post_, _ := opts.Bool("post"); post_ {
		post(opts)
	} else if token_, _ := opts.Bool("token"); token_ {
		token(opts)
	}
}

func connect(opts docopt.Opts) (*dobj.Client, *rooms.Root) {
	url, _ := opts["--url"].(string)
	if url == "" {
		url = DefaultUrl
	}
	userId := opts["--user"].(string)
	tokenValue, _ := opts["--token"].(string)

	build, root := rooms.BuildClientRoot()
	client := dobj.NewClientWithDefaults(
		context.Background(),
		url,
		&dobj.StaticTokenSource{
			UserId: userId,
			TokenValue: tokenValue,
		},
		build,
	)
	return client, root
}

func watch(opts docopt.Opts) {
	client, _ := connect(opts)
	defer client.Close()

	roomKey := opts["<room>"].(string)
	var room *rooms.Room
	handle := client.Resolve(rooms.RoomPath(roomKey), dobj.BackingServer, func(obj *dobj.DObject) {
		rooms.Attach(obj)
	})
	defer handle.Release()

	client.Run(func() {
		room = rooms.FromObject(handle.Object())
		handle.Object().OnStateChange(func(state dobj.State) {
			Out.Printf("state: %s", state)
		})
		room.RoomName.OnChange(func(name string) {
			Out.Printf("roomName: %s", name)
		})
		room.Players.OnAdded(func(player string) {
			Out.Printf("player joined: %s", player)
		})
		room.Players.OnRemoved(func(player string) {
			Out.Printf("player left: %s", player)
		})
		room.Scores.OnSet(func(player string, score int32) {
			Out.Printf("score: %s = %d", player, score)
		})
		room.Scores.OnRemoved(func(player string) {
			Out.Printf("score cleared: %s", player)
		})
		room.Chat.OnReceived(func(event *rooms.ChatEvent) {
			Out.Printf("<%s> %s", event.UserId, event.Text)
		})
	})

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
}

func post(opts docopt.Opts) {
	client, _ := connect(opts)
	defer client.Close()

	roomKey := opts["<room>"].(string)
	message := opts["<message>"].(string)

	var room *rooms.Room
	handle := client.Resolve(rooms.RoomPath(roomKey), dobj.BackingServer, func(obj *dobj.DObject) {
		rooms.Attach(obj)
	})
	defer handle.Release()

	// wait for the subscription before posting
	active := make(chan struct{})
	client.Run(func() {
		room = rooms.FromObject(handle.Object())
		handle.Object().OnStateChange(func(state dobj.State) {
			if state == dobj.StateActive {
				select {
				case <-active:
				default:
					close(active)
				}
			}
		})
		if handle.Object().State() == dobj.StateActive {
			close(active)
		}
	})

	select {
	case <-active:
	case <-time.After(10 * time.Second):
		Err.Fatalf("timed out waiting for subscription")
	}

	client.Run(func() {
		room.Chat.Post(&rooms.ChatPost{
			Text: message,
		})
	})

	// let the send queue drain
	time.Sleep(time.Second)
}

func token(opts docopt.Opts) {
	userId := opts["--user"].(string)

	var secret string
	if secretAny := opts["--secret"]; secretAny != nil {
		secret = secretAny.(string)
	} else {
		fmt.Print("Enter secret: ")
		secretBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			panic(err)
		}
		secret = string(secretBytes)
		fmt.Printf("\n")
	}
	secret = strings.TrimSpace(secret)

	claims := gojwt.MapClaims{
		"user_id": userId,
		"iat": time.Now().Unix(),
	}
	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		panic(err)
	}
	Out.Printf("%s", signed)
}
