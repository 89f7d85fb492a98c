package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gamesync/models"
	"gamesync/store"
)

const (
	blank          = "___"
	maxSlots       = 8
	maxDistractors = 6
)

var builtinTemplates = []models.SentenceTemplate{
	{
		ID:       "builtin-morning",
		Sentence: "I ___ to the ___ every morning.",
		Slots: []models.SentenceSlot{
			{CorrectWord: "walk", Hint: "verb: move on foot"},
			{CorrectWord: "park", Hint: "noun: a public green space"},
		},
		Distractors: []string{"walks", "parks", "swim"},
	},
	{
		ID:       "builtin-meeting",
		Sentence: "Could you ___ the meeting to ___ afternoon?",
		Slots: []models.SentenceSlot{
			{CorrectWord: "move", Hint: "verb: change the time of"},
			{CorrectWord: "Friday", Hint: "a day of the week"},
		},
		Distractors: []string{"moving", "yesterday", "under"},
	},
	{
		ID:       "builtin-interview",
		Sentence: "She ___ very ___ during the job ___.",
		Slots: []models.SentenceSlot{
			{CorrectWord: "sounded", Hint: "verb, past tense"},
			{CorrectWord: "confident", Hint: "adjective: sure of herself"},
			{CorrectWord: "interview", Hint: "noun: a formal conversation"},
		},
		Distractors: []string{"sound", "confidence", "interviewer"},
	},
	{
		ID:       "builtin-phone",
		Sentence: "Thank you for ___, how can I ___ you today?",
		Slots: []models.SentenceSlot{
			{CorrectWord: "calling", Hint: "verb, -ing form"},
			{CorrectWord: "help", Hint: "verb: assist"},
		},
		Distractors: []string{"call", "helping", "tomorrow"},
	},
	{
		ID:       "builtin-travel",
		Sentence: "We ___ our tickets ___ before the ___ left.",
		Slots: []models.SentenceSlot{
			{CorrectWord: "bought", Hint: "verb, past tense of buy"},
			{CorrectWord: "online", Hint: "adverb: over the internet"},
			{CorrectWord: "train", Hint: "noun: a vehicle on rails"},
		},
		Distractors: []string{"buyed", "inline", "trainer"},
	},
}

func init() {
	for i := range builtinTemplates {
		assignSlotIDs(&builtinTemplates[i])
	}
}

// TemplateService keeps the sentence pool of the word-placement game: the
// built-in templates plus any custom ones players have created.
type TemplateService struct {
	store *store.Store
	now   func() time.Time
}

func NewTemplateService(st *store.Store) *TemplateService {
	return &TemplateService{store: st, now: time.Now}
}

type CreateTemplateRequest struct {
	Sentence    string                `json:"sentence" binding:"required"`
	Slots       []TemplateSlotRequest `json:"slots" binding:"required,min=1,max=8,dive"`
	Distractors []string              `json:"distractors" binding:"max=6"`
}

type TemplateSlotRequest struct {
	CorrectWord string `json:"correctWord" binding:"required"`
	Hint        string `json:"hint"`
}

func (s *TemplateService) CreateTemplate(ctx context.Context, caller models.Identity, req *CreateTemplateRequest) (*models.SentenceTemplate, error) {
	tmpl := models.SentenceTemplate{
		Sentence:  strings.TrimSpace(req.Sentence),
		CreatedBy: caller.UID,
		CreatedAt: s.now().UnixMilli(),
	}
	for _, slot := range req.Slots {
		tmpl.Slots = append(tmpl.Slots, models.SentenceSlot{
			CorrectWord: strings.TrimSpace(slot.CorrectWord),
			Hint:        strings.TrimSpace(slot.Hint),
		})
	}
	for _, d := range req.Distractors {
		if d = strings.TrimSpace(d); d != "" {
			tmpl.Distractors = append(tmpl.Distractors, d)
		}
	}

	if err := validateTemplate(&tmpl); err != nil {
		return nil, err
	}

	key, err := store.NewKey()
	if err != nil {
		return nil, err
	}
	tmpl.ID = key
	assignSlotIDs(&tmpl)

	if err := s.store.Set(ctx, store.JoinPath(templatesPath, key), tmpl); err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}
	return &tmpl, nil
}

func validateTemplate(t *models.SentenceTemplate) error {
	blanks := strings.Count(t.Sentence, blank)
	if blanks == 0 {
		return fmt.Errorf("%w: sentence must contain at least one %s blank", ErrInvalidRequest, blank)
	}
	if blanks != len(t.Slots) {
		return fmt.Errorf("%w: sentence has %d blanks but %d slots were given", ErrInvalidRequest, blanks, len(t.Slots))
	}
	if len(t.Slots) > maxSlots {
		return fmt.Errorf("%w: at most %d slots are allowed", ErrInvalidRequest, maxSlots)
	}
	if len(t.Distractors) > maxDistractors {
		return fmt.Errorf("%w: at most %d distractors are allowed", ErrInvalidRequest, maxDistractors)
	}
	for i, slot := range t.Slots {
		if slot.CorrectWord == "" {
			return fmt.Errorf("%w: slot %d has no correct word", ErrInvalidRequest, i+1)
		}
		if strings.ContainsAny(slot.CorrectWord, " \t\n") {
			return fmt.Errorf("%w: slot %d must be a single word", ErrInvalidRequest, i+1)
		}
	}
	return nil
}

func assignSlotIDs(t *models.SentenceTemplate) {
	for i := range t.Slots {
		t.Slots[i].ID = fmt.Sprintf("s%d", i+1)
	}
}

// ListTemplates returns the built-in templates followed by custom ones, oldest first.
func (s *TemplateService) ListTemplates(ctx context.Context) ([]models.SentenceTemplate, error) {
	snap, err := s.store.Get(ctx, templatesPath)
	if err != nil {
		return nil, err
	}
	custom := map[string]models.SentenceTemplate{}
	if err := snap.Decode(&custom); err != nil {
		return nil, fmt.Errorf("failed to decode templates: %w", err)
	}

	list := make([]models.SentenceTemplate, 0, len(custom))
	for _, t := range custom {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt < list[j].CreatedAt
		}
		return list[i].ID < list[j].ID
	})
	return append(append([]models.SentenceTemplate{}, builtinTemplates...), list...), nil
}

func (s *TemplateService) GetTemplate(ctx context.Context, id string) (*models.SentenceTemplate, error) {
	for _, t := range builtinTemplates {
		if t.ID == id {
			t := t
			return &t, nil
		}
	}
	snap, err := s.store.Get(ctx, store.JoinPath(templatesPath, id))
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, ErrTemplateNotFound
	}
	var tmpl models.SentenceTemplate
	if err := snap.Decode(&tmpl); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// DeleteTemplate removes a custom template. Built-ins cannot be deleted.
func (s *TemplateService) DeleteTemplate(ctx context.Context, caller models.Identity, id string) error {
	tmpl, err := s.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if tmpl.CreatedBy == "" || tmpl.CreatedBy != caller.UID {
		return ErrNotTemplateOwner
	}
	return s.store.Remove(ctx, store.JoinPath(templatesPath, id))
}
