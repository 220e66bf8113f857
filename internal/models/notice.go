package models

// NoticeKind identifies a notification the engine sends to a user.
// Transports render it into text for the user's language.
type NoticeKind string

const (
	NoticeSearchWaiting   NoticeKind = "search_waiting"
	NoticeSearchTimeout   NoticeKind = "search_timeout"
	NoticeSearchCancelled NoticeKind = "search_cancelled"
	NoticeMatched         NoticeKind = "matched"

	NoticeChatEndedSelf          NoticeKind = "chat_ended_self"
	NoticeChatEndedPartner       NoticeKind = "chat_ended_partner"
	NoticeChatEndedPartnerBanned NoticeKind = "chat_ended_partner_banned"
	NoticeChatEndedAdmin         NoticeKind = "chat_ended_admin"
	NoticeChatEndedTimeout       NoticeKind = "chat_ended_timeout"
	NoticeChatEndedError         NoticeKind = "chat_ended_error"

	NoticeRevealOffer    NoticeKind = "reveal_offer"
	NoticeRevealNames    NoticeKind = "reveal_names"
	NoticeRevealDeclined NoticeKind = "reveal_declined"

	NoticeWarning         NoticeKind = "warning"
	NoticeBanned          NoticeKind = "banned"
	NoticeUnbanned        NoticeKind = "unbanned"
	NoticeBalanceCredited NoticeKind = "balance_credited"
	NoticeBalanceDebited  NoticeKind = "balance_debited"
	NoticeReferralReward  NoticeKind = "referral_reward"

	NoticeRelay NoticeKind = "relay"
)

// Notice is one notification addressed to a single user.
type Notice struct {
	Kind NoticeKind `json:"kind"`
	// SessionID is set on notices that belong to a session.
	SessionID string `json:"session_id,omitempty"`
	// Name carries the partner's display name on NoticeRevealNames.
	Name    string   `json:"name,omitempty"`
	Amount  int64    `json:"amount,omitempty"`
	Balance int64    `json:"balance,omitempty"`
	Count   int      `json:"count,omitempty"`
	Limit   int      `json:"limit,omitempty"`
	Content *Content `json:"content,omitempty"`
}

// ContentType is the kind of payload relayed between partners.
type ContentType string

const (
	ContentText      ContentType = "text"
	ContentPhoto     ContentType = "photo"
	ContentVideo     ContentType = "video"
	ContentVoice     ContentType = "voice"
	ContentSticker   ContentType = "sticker"
	ContentAnimation ContentType = "animation"
	ContentVideoNote ContentType = "video_note"
)

// Content is a message relayed from one participant to the other.
type Content struct {
	Type    ContentType `json:"type"`
	Text    string      `json:"text,omitempty"`
	FileID  string      `json:"file_id,omitempty"` // Telegram file ID for media
	Caption string      `json:"caption,omitempty"`
}
