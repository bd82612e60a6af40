// Package bot is the Telegram chat adapter. It forwards every message
// through the monitoring pipeline and delivers the gated response, including
// the consent-gated crisis questionnaire when one opens.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/assessment"
	"github.com/mindwell/sentinel/internal/models"
	"github.com/mindwell/sentinel/internal/pipeline"
)

type Bot struct {
	api        *tgbotapi.BotAPI
	processor  *pipeline.Processor
	crisisFlow *assessment.CrisisFlow
	logger     *zap.Logger

	mu      sync.Mutex
	pending map[int64]*pendingQuestionnaire
	chats   map[int64]*sync.Mutex
}

// pendingQuestionnaire tracks where a chat is inside the crisis flow.
type pendingQuestionnaire struct {
	sessionID       string
	awaitingConsent bool
	questionIdx     int
	responses       map[string]int
}

func New(token string, processor *pipeline.Processor, crisisFlow *assessment.CrisisFlow, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		api:        api,
		processor:  processor,
		crisisFlow: crisisFlow,
		logger:     logger,
		pending:    make(map[int64]*pendingQuestionnaire),
		chats:      make(map[int64]*sync.Mutex),
	}, nil
}

func (b *Bot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		go b.handleMessage(update.Message)
	}

	return nil
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	ctx := context.Background()

	if message.IsCommand() {
		b.handleCommand(message)
		return
	}

	// Replies in one chat are handled in order; questionnaire state is only
	// touched while the chat lock is held.
	lock := b.chatLock(message.Chat.ID)
	lock.Lock()
	defer lock.Unlock()

	// An open questionnaire claims the conversation until it resolves.
	if p := b.pendingFor(message.Chat.ID); p != nil {
		b.handleQuestionnaireReply(ctx, message, p)
		return
	}

	result, err := b.processor.Process(ctx, models.Message{
		ID:           uuid.New().String(),
		IndividualID: strconv.FormatInt(message.From.ID, 10),
		Text:         message.Text,
		SessionID:    strconv.Itoa(message.MessageID / 1000),
		Timestamp:    time.Now(),
	})
	if err != nil {
		b.logger.Error("Failed to process message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
		b.sendMessage(message.Chat.ID, "I'm having trouble right now, but I'm still here. Please try again in a moment.")
		return
	}

	b.sendMessage(message.Chat.ID, result.ResponseText)

	if result.Questionnaire != nil {
		b.setPending(message.Chat.ID, &pendingQuestionnaire{
			sessionID:       result.Questionnaire.ID,
			awaitingConsent: true,
			responses:       make(map[string]int),
		})
		b.sendMessage(message.Chat.ID, assessment.ConsentPrompt)
	}
}

func (b *Bot) handleQuestionnaireReply(ctx context.Context, message *tgbotapi.Message, p *pendingQuestionnaire) {
	answer, ok := parseYesNo(message.Text)
	if !ok {
		b.sendMessage(message.Chat.ID, "Just to make sure I understand, could you answer with yes or no?")
		return
	}

	questions := b.crisisFlow.Questions()

	if p.awaitingConsent {
		session, err := b.crisisFlow.RecordConsent(ctx, p.sessionID, answer == 1)
		if err != nil {
			b.questionnaireFailed(message.Chat.ID, p, err)
			return
		}
		if session.State == models.QuestionnaireDeclined {
			b.clearPending(message.Chat.ID)
			b.sendMessage(message.Chat.ID, "That's completely okay. We can keep talking just like before, and I'm here whenever you need me.")
			return
		}
		p.awaitingConsent = false
		b.sendMessage(message.Chat.ID, questions[0].Text)
		return
	}

	p.responses[questions[p.questionIdx].ID] = answer
	p.questionIdx++

	if p.questionIdx < len(questions) {
		b.sendMessage(message.Chat.ID, questions[p.questionIdx].Text)
		return
	}

	session, err := b.crisisFlow.SubmitResponses(ctx, p.sessionID, p.responses)
	if err != nil {
		b.questionnaireFailed(message.Chat.ID, p, err)
		return
	}
	b.clearPending(message.Chat.ID)

	switch session.Outcome {
	case assessment.OutcomeImmediateCrisis:
		b.sendMessage(message.Chat.ID, pipeline.CrisisProtocolMessage)
	case assessment.OutcomeUrgentReview:
		b.sendMessage(message.Chat.ID, "Thank you for being honest with me, that takes courage. A counselor will reach out to you soon. In the meantime, I'm right here with you.")
	default:
		b.sendMessage(message.Chat.ID, "Thank you for answering those questions. I'm glad we talked through it, and I'm here any time you want to keep talking.")
	}
}

func (b *Bot) questionnaireFailed(chatID int64, p *pendingQuestionnaire, err error) {
	b.logger.Error("Questionnaire step failed",
		zap.Error(err),
		zap.String("session_id", p.sessionID),
		zap.Int64("chat_id", chatID))
	b.clearPending(chatID)
	b.sendMessage(chatID, "Something went wrong on my end, but we can keep talking as before.")
}

func (b *Bot) handleCommand(message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Hi, I'm here to listen. 💙
You can talk to me about anything that's on your mind, whenever you want.

Everything you share stays between us and the care team looking out for you.
Use /help to see available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the conversation
/help - Show this help message

Just send me a message about how you're doing. If I ever ask you some direct questions, it's because I care about how you're feeling, and you can always say no.`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) chatLock(chatID int64) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	lock, ok := b.chats[chatID]
	if !ok {
		lock = &sync.Mutex{}
		b.chats[chatID] = lock
	}
	return lock
}

func (b *Bot) pendingFor(chatID int64) *pendingQuestionnaire {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending[chatID]
}

func (b *Bot) setPending(chatID int64, p *pendingQuestionnaire) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[chatID] = p
}

func (b *Bot) clearPending(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, chatID)
}

func parseYesNo(text string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "y", "yeah", "yep", "sure", "ok", "okay":
		return 1, true
	case "no", "n", "nope", "not really":
		return 0, true
	}
	return 0, false
}
