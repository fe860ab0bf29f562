package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"

	"github.com/golang/glog"

	"github.com/spf13/viper"

	"statelink.io/dobj/dobj"
	"statelink.io/dobj/docstore"
	"statelink.io/dobj/rooms"
)

const DobjdVersion = "0.1.0"

const DefaultHttpPort = 8080

func main() {
	usage := `Distributed object server.

Hosts the rooms tree on a websocket data endpoint. Any non-websocket path
answers 200 for healthchecks. With a data dir configured, rooms persist to a
cbor document store under it and are restored on restart.

Configuration is read from the environment (HTTP_PORT, DOBJ_AUTH_SECRET,
DOBJ_DATA_DIR) and optionally from a yaml config file.

Usage:
    dobjd serve [--port=<port>] [--config=<config>] [--data_dir=<data_dir>]
        [--motd=<motd>]

Options:
    -h --help               Show this screen.
    --version               Show version.
    -p --port=<port>        Listen port. Overrides HTTP_PORT.
    --config=<config>       Path to a yaml config file.
    --data_dir=<data_dir>   Document store directory. Overrides DOBJ_DATA_DIR.
    --motd=<motd>           Message of the day on the root object.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], DobjdVersion)
	if err != nil {
		panic(err)
	}

	flag.Set("logtostderr", "true")
	flag.Parse()

	if serve_, _ := opts.Bool("serve"); serve_ {
		serve(opts)
	}
}

func loadConfig(opts docopt.Opts) *viper.Viper {
	config := viper.New()
	config.SetDefault("http_port", DefaultHttpPort)
	config.SetDefault("auth_secret", "")
	config.SetDefault("data_dir", "")
	config.BindEnv("http_port", "HTTP_PORT")
	config.BindEnv("auth_secret", "DOBJ_AUTH_SECRET")
	config.BindEnv("data_dir", "DOBJ_DATA_DIR")

	if configPathAny := opts["--config"]; configPathAny != nil {
		config.SetConfigFile(configPathAny.(string))
		if err := config.ReadInConfig(); err != nil {
			panic(err)
		}
	}

	if port, err := opts.Int("--port"); err == nil && 0 < port {
		config.Set("http_port", port)
	}
	if dataDirAny := opts["--data_dir"]; dataDirAny != nil {
		config.Set("data_dir", dataDirAny.(string))
	}

	return config
}

func serve(opts docopt.Opts) {
	config := loadConfig(opts)
	port := config.GetInt("http_port")

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	settings := dobj.DefaultServerSettings()
	settings.AuthSecret = config.GetString("auth_secret")

	// with a data dir, every materialised room is bound to a file-backed
	// document store: its document is restored before the room is served,
	// and mutations write through incrementally
	var store docstore.Store
	if dataDir := config.GetString("data_dir"); dataDir != "" {
		fileStore, err := docstore.NewFileStore(dataDir)
		if err != nil {
			panic(err)
		}
		store = fileStore
		defer store.Close()
		glog.Infof("[d]persisting rooms under %s", dataDir)
	}

	var server *dobj.Server
	var onRoom func(ctx context.Context, room *rooms.Room) error
	if store != nil {
		onRoom = func(ctx context.Context, room *rooms.Room) error {
			binding, err := docstore.NewBinding(cancelCtx, server, room.Obj, store)
			if err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				binding.Close()
				return ctx.Err()
			case <-binding.Loaded():
			}
			// the binding lives as long as the room, the life of the server
			return nil
		}
	}
	build, root := rooms.BuildServerRoot(func(f func()) {
		server.Run(f)
	}, onRoom)
	server = dobj.NewServer(cancelCtx, build, settings)

	if motdAny := opts["--motd"]; motdAny != nil {
		motd := motdAny.(string)
		server.Run(func() {
			root.Motd.Set(motd)
		})
	}

	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", port),
		Handler: server,
	}

	go func() {
		defer cancel()
		glog.Infof("[d]listening on *:%d", port)
		if err := httpServer.ListenAndServe(); err != nil {
			glog.Infof("[d]http error = %s", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case <-cancelCtx.Done():
	case sig := <-sigs:
		glog.Infof("[d]signal %s", sig)
	}

	httpServer.Shutdown(cancelCtx)
	server.Close()

	os.Exit(0)
}
