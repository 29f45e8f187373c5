// chatctl 是面向維運的命令行工具，直接組裝存儲與分發器，
// 不經過 HTTP 層. 發送走客戶端對賬器，其餘操作直接分發.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"chat-core/internal/action"
	chatmsg "chat-core/internal/chat/message"

	"chat-core/internal/chat/authz"
	"chat-core/internal/client"
	"chat-core/internal/constants"
	"chat-core/internal/platform/config"
	"chat-core/internal/platform/driver"
	"chat-core/internal/platform/logger"
	"chat-core/internal/storage/database"
	"chat-core/internal/storage/database/message"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

var (
	flagUser     string
	flagConverse string
	flagGroup    string
)

func main() {
	root := &cobra.Command{
		Use:          "chatctl",
		Short:        "聊天核心維運工具",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagUser, "user", "", "操作者用戶 ID")
	root.PersistentFlags().StringVar(&flagConverse, "converse", "", "會話 ID")
	root.PersistentFlags().StringVar(&flagGroup, "group", "", "群組 ID（可選）")

	root.AddCommand(sendCmd(), historyCmd(), nearbyCmd(), recallCmd(), reactCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup 組裝完整的服務棧，返回分發器與清理函數.
func setup() (*action.Registry, func(), error) {
	_ = godotenv.Load()

	if err := logger.InitLogger(); err != nil {
		return nil, nil, err
	}
	if err := config.Load(); err != nil {
		logger.CloseLogger()
		return nil, nil, err
	}
	if err := driver.ConnectMongo(); err != nil {
		logger.CloseLogger()
		return nil, nil, err
	}

	database.SetMongoDB(driver.GetMongoDatabase())

	clock := clockwork.NewRealClock()
	repos := database.NewRepositories(clock)
	svc := chatmsg.NewService(repos.Message, repos.Receipt, authz.AllowAll{}, clock)

	registry := action.NewRegistry()
	svc.Register(registry)

	cleanup := func() {
		_ = driver.CloseMongo()
		logger.CloseLogger()
	}
	return registry, cleanup, nil
}

// actorCtx 帶操作者與超時的上下文.
func actorCtx() (context.Context, context.CancelFunc) {
	ctx := action.WithActor(context.Background(), flagUser)
	return context.WithTimeout(ctx, constants.DefaultRequestTimeout*time.Second)
}

func sendCmd() *cobra.Command {
	var mentions []string

	cmd := &cobra.Command{
		Use:   "send <content>",
		Short: "發送一條消息",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := actorCtx()
			defer cancel()

			rec := client.NewReconciler(registry, flagConverse, flagGroup)
			if _, err := rec.Send(ctx, args[0], mentions); err != nil {
				return err
			}

			for _, entry := range rec.Timeline() {
				if confirmed, ok := entry.(*client.Confirmed); ok {
					fmt.Printf("sent %s at %s\n", confirmed.Message.ID, confirmed.Message.CreatedAt.Format(time.RFC3339))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&mentions, "mention", nil, "提及的用戶 ID")
	return cmd
}

func historyCmd() *cobra.Command {
	var startID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "讀取會話歷史（新消息在前）",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := actorCtx()
			defer cancel()

			payload := action.Payload{"converseId": flagConverse}
			if startID != "" {
				payload["startId"] = startID
			}

			result, err := registry.Invoke(ctx, action.MessageFetchConverse, payload)
			if err != nil {
				return err
			}
			printMessages(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&startID, "cursor", "", "排他游標（消息 ID）")
	return cmd
}

func nearbyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nearby <messageId>",
		Short: "以指定消息為錨點讀取上下文",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := actorCtx()
			defer cancel()

			result, err := registry.Invoke(ctx, action.MessageFetchNearby, action.Payload{
				"converseId": flagConverse,
				"messageId":  args[0],
			})
			if err != nil {
				return err
			}
			printMessages(result)
			return nil
		},
	}
	return cmd
}

func recallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recall <messageId>",
		Short: "撤回一條消息",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := actorCtx()
			defer cancel()

			result, err := registry.Invoke(ctx, action.MessageRecall, action.Payload{
				"messageId": args[0],
			})
			if err != nil {
				return err
			}
			if msg, ok := result.(*message.Message); ok {
				fmt.Printf("recalled %s\n", msg.ID)
			}
			return nil
		},
	}
}

func reactCmd() *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "react <messageId> <emoji>",
		Short: "添加或移除表情回應",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := actorCtx()
			defer cancel()

			name := action.MessageAddReaction
			if remove {
				name = action.MessageRemoveReaction
			}

			if _, err := registry.Invoke(ctx, name, action.Payload{
				"messageId": args[0],
				"emoji":     args[1],
			}); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}

	cmd.Flags().BoolVar(&remove, "remove", false, "移除而非添加")
	return cmd
}

func printMessages(result interface{}) {
	msgs, ok := result.([]*message.Message)
	if !ok {
		fmt.Printf("%v\n", result)
		return
	}
	for _, m := range msgs {
		state := ""
		if m.HasRecall {
			state = " (recalled)"
		}
		fmt.Printf("%s  %s  %s%s\n", m.ID, m.Author, m.Content, state)
		for _, group := range m.GroupedReactions() {
			fmt.Printf("    %s x%d\n", group.Emoji, group.Count)
		}
	}
}
