package models

// WordItem is one draggable word in the bank.
type WordItem struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	IsPlaced     bool   `json:"isPlaced"`
	PlacedInSlot string `json:"placedInSlot,omitempty"`
	// Scored is set once the word has earned points, so moving it out and
	// back in does not score twice.
	Scored bool `json:"scored,omitempty"`
}

// SentenceSlot is one blank in the sentence.
type SentenceSlot struct {
	ID          string `json:"id"`
	CorrectWord string `json:"correctWord"`
	Hint        string `json:"hint"`
}

// WordBoard is the shared state of the word-placement game for one round.
type WordBoard struct {
	TemplateID  string         `json:"templateId"`
	Sentence    string         `json:"sentence"`
	Slots       []SentenceSlot `json:"slots"`
	Words       []WordItem     `json:"words"`
	Progress    float64        `json:"progress"`
	Round       int            `json:"round"`
	CompletedAt int64          `json:"completedAt,omitempty"`
}

func (b *WordBoard) Word(id string) *WordItem {
	for i := range b.Words {
		if b.Words[i].ID == id {
			return &b.Words[i]
		}
	}
	return nil
}

func (b *WordBoard) Slot(id string) *SentenceSlot {
	for i := range b.Slots {
		if b.Slots[i].ID == id {
			return &b.Slots[i]
		}
	}
	return nil
}

// WordInSlot returns the word currently placed in slotID.
func (b *WordBoard) WordInSlot(slotID string) *WordItem {
	for i := range b.Words {
		if b.Words[i].IsPlaced && b.Words[i].PlacedInSlot == slotID {
			return &b.Words[i]
		}
	}
	return nil
}

// Complete reports whether every slot holds a word.
func (b *WordBoard) Complete() bool {
	return len(b.Slots) > 0 && b.Placed() >= len(b.Slots)
}

func (b *WordBoard) Placed() int {
	n := 0
	for _, w := range b.Words {
		if w.IsPlaced {
			n++
		}
	}
	return n
}

// SentenceTemplate is a fill-in-the-blank sentence. Blanks are written "___"
// and matched to Slots in order.
type SentenceTemplate struct {
	ID          string         `json:"id"`
	Sentence    string         `json:"sentence"`
	Slots       []SentenceSlot `json:"slots"`
	Distractors []string       `json:"distractors"`
	CreatedBy   string         `json:"createdBy,omitempty"`
	CreatedAt   int64          `json:"createdAt,omitempty"`
}
