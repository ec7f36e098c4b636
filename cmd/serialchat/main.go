package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"serialchat"
)

func main() {
	configPath := flag.String("config", "serialchat.yaml", "path to the YAML configuration file")
	dataDir := flag.String("data", "", "data directory (overrides config)")
	flag.Parse()

	cfg, err := serialchat.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	log := serialchat.NewLogger(cfg.Logging)

	store, err := serialchat.NewDataStore(cfg.DataDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("data store")
	}

	registry := serialchat.NewRegistry(log)
	defer registry.Close()
	registry.SetRefreshInterval(cfg.RescanInterval())
	registry.SetAutoRefresh(true)

	messages := serialchat.NewMessageStore()
	router := serialchat.NewGroupRouter(registry, messages, log)

	var archive *serialchat.Archive
	if cfg.Archive.Enabled {
		archive, err = serialchat.OpenArchive(cfg.Archive.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("archive")
		}
		defer archive.Close()
	}

	loadState(store, registry, router, messages, log)

	registry.OnStatusChanged(func(port string, status serialchat.PortStatus) {
		fmt.Printf("* %s is now %s\n", port, status)
	})
	registry.OnMessageReceived(func(port string, msg serialchat.Message) {
		messages.Append(msg)
		if archive != nil {
			if err := archive.Append(msg); err != nil {
				log.Warn().Err(err).Msg("archive append")
			}
		}
		fmt.Printf("< [%s] %s\n", port, msg.Text())
	})
	registry.OnMessageSent(func(port string, msg serialchat.Message) {
		messages.Append(msg)
		if archive != nil {
			if err := archive.Append(msg); err != nil {
				log.Warn().Err(err).Msg("archive append")
			}
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nshutting down")
		registry.DisconnectAll()
		saveState(store, registry, router, messages, log)
		os.Exit(0)
	}()

	fmt.Fprintln(os.Stderr, "serialchat ready. Type 'help' for commands, 'quit' to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		runCommand(line, cfg, registry, router, messages, store, archive)
	}

	registry.DisconnectAll()
	saveState(store, registry, router, messages, log)
}

func runCommand(line string, cfg serialchat.Config, registry *serialchat.Registry,
	router *serialchat.GroupRouter, messages *serialchat.MessageStore,
	store *serialchat.DataStore, archive *serialchat.Archive) {

	args := strings.Fields(line)
	cmd, args := args[0], args[1:]

	switch cmd {
	case "help":
		printHelp()

	case "ports":
		registry.RefreshAvailablePorts()
		for _, p := range registry.AvailablePorts() {
			fmt.Println(p)
		}

	case "friends":
		for _, rec := range registry.FriendList() {
			fmt.Printf("%-30s %s\n", rec.DisplayName(), rec.Status)
		}

	case "add":
		if len(args) < 1 {
			fmt.Fprintln(os.Stderr, "usage: add <port> [remark]")
			return
		}
		rec := cfg.NewRecord(args[0])
		if len(args) > 1 {
			rec.Remark = strings.Join(args[1:], " ")
		}
		if err := rec.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return
		}
		registry.GetOrCreateHandleRecord(rec)

	case "remove":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "usage: remove <port>")
			return
		}
		registry.RemoveHandle(args[0])
		registry.RemoveFriend(args[0])

	case "remark":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: remark <port> <text>")
			return
		}
		registry.SetRemark(args[0], strings.Join(args[1:], " "))

	case "connect":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "usage: connect <port>")
			return
		}
		registry.GetOrCreateHandleRecord(cfg.NewRecord(args[0]))
		if err := registry.Connect(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}

	case "disconnect":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "usage: disconnect <port>")
			return
		}
		registry.Disconnect(args[0])

	case "send":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: send <port> <text>")
			return
		}
		if _, err := registry.SendText(args[0], strings.Join(args[1:], " ")); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}

	case "sendhex":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: sendhex <port> <hex>")
			return
		}
		if _, err := registry.SendHex(args[0], strings.Join(args[1:], " ")); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}

	case "history":
		if len(args) < 1 {
			fmt.Fprintln(os.Stderr, "usage: history <port> [n]")
			return
		}
		limit := 20
		if len(args) > 1 {
			if n, err := strconv.Atoi(args[1]); err == nil {
				limit = n
			}
		}
		for _, msg := range messages.MessagesLimit(args[0], limit) {
			printMessage(msg)
		}

	case "groups":
		for _, g := range router.Groups() {
			fwd := "forwarding"
			if !g.ForwardingEnabled {
				fwd = "muted"
			}
			fmt.Printf("%s  %-20s %d members, %s\n", g.ID, g.Name, g.MemberCount(), fwd)
		}

	case "group":
		runGroupCommand(args, router, messages)

	case "stats":
		snap := registry.Metrics().Snapshot()
		fmt.Printf("online: %d/%d  sent: %d  received: %d  forwarded: %d\n",
			registry.OnlineCount(), registry.TotalCount(),
			snap.MessagesSent, snap.MessagesReceived, snap.MessagesForwarded)

	case "export":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "usage: export <path>")
			return
		}
		if err := exportAll(args[0], store, registry, router, messages); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}

	case "archive":
		if archive == nil {
			fmt.Fprintln(os.Stderr, "archive is disabled")
			return
		}
		if len(args) < 1 {
			fmt.Fprintln(os.Stderr, "usage: archive <port> [n]")
			return
		}
		limit := 20
		if len(args) > 1 {
			if n, err := strconv.Atoi(args[1]); err == nil {
				limit = n
			}
		}
		msgs, err := archive.Messages(args[0], limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return
		}
		for _, msg := range msgs {
			printMessage(msg)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q, try 'help'\n", cmd)
	}
}

func runGroupCommand(args []string, router *serialchat.GroupRouter, messages *serialchat.MessageStore) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: group <create|rm|join|leave|fwd|history> ...")
		return
	}
	sub, args := args[0], args[1:]

	switch sub {
	case "create":
		if len(args) < 1 {
			fmt.Fprintln(os.Stderr, "usage: group create <name> [description]")
			return
		}
		g := router.CreateGroup(args[0], strings.Join(args[1:], " "))
		fmt.Println(g.ID)

	case "rm":
		if len(args) != 1 || !router.RemoveGroup(args[0]) {
			fmt.Fprintln(os.Stderr, "usage: group rm <id>")
		}

	case "join":
		if len(args) != 2 || !router.AddMember(args[0], args[1]) {
			fmt.Fprintln(os.Stderr, "usage: group join <id> <port>")
		}

	case "leave":
		if len(args) != 2 || !router.RemoveMember(args[0], args[1]) {
			fmt.Fprintln(os.Stderr, "usage: group leave <id> <port>")
		}

	case "fwd":
		if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
			fmt.Fprintln(os.Stderr, "usage: group fwd <id> on|off")
			return
		}
		router.SetForwardingEnabled(args[0], args[1] == "on")

	case "history":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "usage: group history <id>")
			return
		}
		for _, msg := range messages.GroupMessages(args[0]) {
			printMessage(msg)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown group command %q\n", sub)
	}
}

func printMessage(msg serialchat.Message) {
	marker := "<"
	if msg.Direction == serialchat.DirectionSent {
		marker = ">"
	}
	fmt.Printf("%s %s [%s] %s\n",
		msg.Timestamp.Format("15:04:05.000"), marker, msg.PortName, msg.Text())
}

func printHelp() {
	fmt.Print(`ports                        list available serial ports
friends                      list known ports with status
add <port> [remark]          register a port
remove <port>                forget a port
remark <port> <text>         set a port's display remark
connect <port>               open a port
disconnect <port>            close a port
send <port> <text>           send text
sendhex <port> <hex>         send hex bytes (e.g. "DE AD BE EF")
history <port> [n]           show recent messages
groups                       list chat groups
group create <name> [desc]   create a group
group rm <id>                remove a group
group join <id> <port>       add a member
group leave <id> <port>      remove a member
group fwd <id> on|off        toggle forwarding
group history <id>           show a group's history
archive <port> [n]           query the message archive
stats                        show counters
export <path>                write a combined JSON export
quit                         save and exit
`)
}

func loadState(store *serialchat.DataStore, registry *serialchat.Registry,
	router *serialchat.GroupRouter, messages *serialchat.MessageStore, log zerolog.Logger) {

	friends, err := store.LoadFriendList()
	if err != nil {
		log.Warn().Err(err).Msg("loading friends")
	}
	registry.LoadFriends(friends)
	for _, rec := range friends {
		history, err := store.LoadMessages(rec.Name)
		if err != nil {
			log.Warn().Str("port", rec.Name).Err(err).Msg("loading messages")
			continue
		}
		messages.LoadMessages(rec.Name, history)
	}

	groups, err := store.LoadChatGroups()
	if err != nil {
		log.Warn().Err(err).Msg("loading groups")
	}
	for _, g := range groups {
		router.AddGroup(g)
		history, err := store.LoadGroupMessages(g.ID)
		if err != nil {
			log.Warn().Str("group", g.ID).Err(err).Msg("loading group messages")
			continue
		}
		messages.LoadGroupMessages(g.ID, history)
	}
}

func saveState(store *serialchat.DataStore, registry *serialchat.Registry,
	router *serialchat.GroupRouter, messages *serialchat.MessageStore, log zerolog.Logger) {

	if err := store.SaveFriendList(registry.FriendList()); err != nil {
		log.Error().Err(err).Msg("saving friends")
	}
	if err := store.SaveChatGroups(router.Groups()); err != nil {
		log.Error().Err(err).Msg("saving groups")
	}
	for _, key := range messages.PortKeys() {
		if err := store.SaveMessages(key, messages.Messages(key)); err != nil {
			log.Error().Str("port", key).Err(err).Msg("saving messages")
		}
	}
	for _, key := range messages.GroupKeys() {
		if err := store.SaveGroupMessages(key, messages.GroupMessages(key)); err != nil {
			log.Error().Str("group", key).Err(err).Msg("saving group messages")
		}
	}
}

func exportAll(path string, store *serialchat.DataStore, registry *serialchat.Registry,
	router *serialchat.GroupRouter, messages *serialchat.MessageStore) error {

	ports := map[string][]serialchat.Message{}
	for _, key := range messages.PortKeys() {
		ports[key] = messages.Messages(key)
	}
	groups := map[string][]serialchat.Message{}
	for _, key := range messages.GroupKeys() {
		groups[key] = messages.GroupMessages(key)
	}
	return store.Export(path, registry.FriendList(), router.Groups(), ports, groups)
}
