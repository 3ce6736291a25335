package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"group-chat/internal/changefeed"
	"group-chat/internal/config"
	"group-chat/internal/db"
	"group-chat/internal/domain"
	"group-chat/internal/eventbus"
	"group-chat/internal/pagination"
	"group-chat/internal/repository"
	"group-chat/internal/service"
)

// Cliente de terminal: habla directo con el store y el bus, sin pasar por HTTP.
func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatal(err)
	}

	var bus eventbus.Bus
	if cfg.EventBus == config.EventBusRedis {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer client.Close()
		bus = eventbus.NewRedisBus(client, logger)
	} else {
		// Con bus en memoria solo se ven los mensajes de este proceso.
		bus = eventbus.NewMemoryBus(0, logger)
	}
	defer bus.Close()

	userRepo := repository.NewPgUserRepository(pool)
	memberRepo := repository.NewPgMembershipRepository(pool)
	userSvc := service.NewUserService(logger, userRepo)
	groupSvc := service.NewGroupService(logger, repository.NewPgGroupRepository(pool), memberRepo)
	var notifier changefeed.Notifier = changefeed.NewPublisher(bus, logger)
	if cfg.ChangeFeedMode == config.ChangeFeedListen {
		notifier = nil
	}
	messageSvc := service.NewMessageService(logger, repository.NewPgMessageRepository(pool), memberRepo, notifier, nil, nil)

	user, err := identify(ctx, reader, userSvc)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Hola %s (%s)\n", user.Name, user.ID)

	for {
		fmt.Println("\n===== Group Chat =====")
		fmt.Println("[1] Mis grupos")
		fmt.Println("[2] Crear grupo")
		fmt.Println("[3] Unirse a un grupo")
		fmt.Println("[4] Chatear en un grupo")
		fmt.Println("[5] Buscar mensajes")
		fmt.Println("[6] Salir")
		fmt.Print("Opcion: ")

		switch readLine(reader) {
		case "1":
			groups, err := groupSvc.Mine(ctx, user.ID)
			if err != nil {
				fmt.Printf("Error listando grupos: %v\n", err)
				continue
			}
			if len(groups) == 0 {
				fmt.Println("No perteneces a ningun grupo.")
			}
			for i, g := range groups {
				fmt.Printf("[%d] %s\n", i+1, g)
			}
		case "2":
			group, err := groupSvc.Create(ctx, user.ID, "")
			if err != nil {
				fmt.Printf("Error creando grupo: %v\n", err)
				continue
			}
			fmt.Printf("Grupo creado: %s\n", group.ID)
		case "3":
			fmt.Print("UUID del grupo: ")
			if _, err := groupSvc.Join(ctx, user.ID, readLine(reader)); err != nil {
				fmt.Printf("Error uniendose: %v\n", err)
				continue
			}
			fmt.Println("Listo.")
		case "4":
			fmt.Print("UUID del grupo: ")
			if err := chatFlow(ctx, reader, user, readLine(reader), messageSvc, bus); err != nil {
				fmt.Printf("Error en chat: %v\n", err)
			}
		case "5":
			fmt.Print("Texto: ")
			results, err := messageSvc.Search(ctx, user.ID, readLine(reader), 20, 0)
			if err != nil {
				fmt.Printf("Error buscando: %v\n", err)
				continue
			}
			for _, m := range results {
				printMessage(m)
			}
			fmt.Printf("(%d resultados)\n", len(results))
		case "6":
			return
		default:
			fmt.Println("Opcion invalida.")
		}
	}
}

// chatFlow muestra el historial reciente, sigue el grupo en vivo y publica lo que se escribe.
func chatFlow(ctx context.Context, reader *bufio.Reader, user domain.User, groupID string, messages *service.MessageService, bus eventbus.Bus) error {
	page, err := messages.Page(ctx, user.ID, service.PageRequest{GroupID: groupID, Limit: pagination.DefaultLimit})
	if err != nil {
		return err
	}
	for i := len(page.Items) - 1; i >= 0; i-- {
		printMessage(page.Items[i])
	}

	chatCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub, err := bus.Subscribe(chatCtx, eventbus.GroupTopic(strings.TrimSpace(groupID)))
	if err != nil {
		return err
	}
	defer sub.Close()

	go func() {
		for d := range sub.C() {
			evt, err := domain.DecodeEvent(d.Payload)
			if err != nil {
				continue
			}
			msg := evt.Data.ToMessage()
			switch evt.Type {
			case domain.EventNewMessage:
				if msg.SenderID != user.ID {
					printMessage(msg)
				}
			case domain.EventUpdatedMessage:
				fmt.Printf("  (editado #%d) %s\n", msg.ID, msg.Content)
			case domain.EventDeletedMessage:
				fmt.Printf("  (borrado #%d)\n", msg.ID)
			}
		}
	}()

	fmt.Println("---- Modo Chat ('salir' termina, '/mas' trae mensajes anteriores) ----")
	cursor := page.NextCursor
	for {
		text := readLine(reader)
		switch {
		case text == "":
			continue
		case strings.EqualFold(text, "salir"):
			fmt.Println("Saliendo del chat...")
			return nil
		case text == "/mas":
			if cursor == nil {
				fmt.Println("No hay mensajes anteriores.")
				continue
			}
			older, err := messages.Page(ctx, user.ID, service.PageRequest{GroupID: groupID, Cursor: pagination.Encode(*cursor)})
			if err != nil {
				fmt.Printf("error paginando: %v\n", err)
				continue
			}
			for i := len(older.Items) - 1; i >= 0; i-- {
				printMessage(older.Items[i])
			}
			cursor = older.NextCursor
		default:
			msg, err := messages.Post(ctx, user.ID, service.PostMessageInput{GroupID: groupID, Content: text})
			if err != nil {
				fmt.Printf("error enviando mensaje: %v\n", err)
				continue
			}
			printMessage(msg)
		}
	}
}

// identify hace login por nombre y, si no existe, ofrece registrarlo.
func identify(ctx context.Context, reader *bufio.Reader, users *service.UserService) (domain.User, error) {
	for {
		fmt.Print("Nombre de usuario: ")
		name := readLine(reader)
		user, err := users.Login(ctx, name)
		if err == nil {
			return user, nil
		}
		if errors.Is(err, domain.ErrValidationFailed) {
			fmt.Printf("Nombre invalido: %v\n", err)
			continue
		}
		if !errors.Is(err, domain.ErrNotAuthenticated) {
			return domain.User{}, err
		}
		fmt.Printf("'%s' no existe. Registrarlo? [s/N]: ", name)
		if !strings.EqualFold(readLine(reader), "s") {
			continue
		}
		user, err = users.Register(ctx, service.RegisterInput{Name: name})
		if err != nil {
			fmt.Printf("No se pudo registrar: %v\n", err)
			continue
		}
		return user, nil
	}
}

func printMessage(m domain.Message) {
	p := m.Payload()
	fmt.Printf("[%s] %s: %s\n", p.CreatedAt.Local().Format(time.Kitchen), p.SenderName, p.Content)
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
