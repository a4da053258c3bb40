// Command client is an interactive console client for the linechat server.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"github.com/Tyrowin/linechat/internal/client"
)

type clientConfig struct {
	Port int `env:"CHAT_PORT" default:"8080"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "[client]", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var cfg clientConfig
	if err := env.Load(&cfg, nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	stdin := bufio.NewReader(os.Stdin)

	host, err := prompt(stdin, "Enter server IP address (type localhost or nothing for localhost): ")
	if err != nil {
		return err
	}
	host = strings.TrimSpace(host)
	if host == "" {
		host = "localhost"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, net.JoinHostPort(host, strconv.Itoa(cfg.Port)), os.Stdout)
	if err != nil {
		return err
	}

	username, err := prompt(stdin, "Enter your username: ")
	if err != nil {
		_ = c.Close()
		return err
	}
	if err := c.Login(username); err != nil {
		_ = c.Close()
		return err
	}

	fmt.Println("Connected to chat. Type messages below:")
	fmt.Println("Type /exit to disconnect")
	fmt.Println(`Type /msg "username" <message> to send a private message`)
	fmt.Println("Type /list to see all online users")

	return c.Run(ctx, stdin)
}

// prompt prints label and reads one line, without its line ending.
func prompt(r *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
