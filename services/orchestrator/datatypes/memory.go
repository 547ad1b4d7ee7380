package datatypes

// Memory roles. Every completed turn produces one entry per role.
const (
	MemoryRoleUser      = "user"
	MemoryRoleAssistant = "assistant"
)

// MemoryEntry is one role-tagged line of conversation memory.
//
// RunId present means the entry is session-scoped (ephemeral transcript,
// queryable by exact session id). RunId absent means the entry belongs to
// the user's long-term store and is queryable by semantic similarity.
type MemoryEntry struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	UserId    string `json:"user_id"`
	RunId     string `json:"run_id,omitempty"`
	CreatedAt int64  `json:"created_at"`
}
