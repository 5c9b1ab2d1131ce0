package bot

import (
	"context"
	"encoding/json"
	"fmt"

	"boxim-bot/internal/dispatch"
	"boxim-bot/internal/guard"
	"boxim-bot/internal/logging"
	"boxim-bot/internal/protocol"
)

const (
	firstOffenseNotice  = "⚠️ %s 检测到刷屏行为！您已被暂时禁言1分钟，请勿频繁发送消息。"
	repeatOffenseNotice = "🚫 %s 多次刷屏警告！您的所有数据已被清空。"
)

func (b *Bot) handlers() dispatch.Handlers {
	return dispatch.Handlers{
		Private: []dispatch.Handler{
			{Name: "activity", Fn: b.countPrivate},
			{Name: "guard", Fn: b.guardSender},
		},
		Group: []dispatch.Handler{
			{Name: "mute-tracker", Fn: b.trackGroupMute},
			{Name: "activity", Fn: b.countGroup},
			{Name: "guard", Fn: b.guardSender},
		},
	}
}

func (b *Bot) countPrivate(ctx context.Context, msg protocol.Message) error {
	if msg.Type == protocol.TypeOnlineStatus {
		return nil
	}
	b.logger.Info("private message",
		logging.Field("sender", msg.SendID.String()),
		logging.Field("type", msg.Type.String()),
		logging.Field("preview", msg.Preview()),
	)
	if msg.Type == protocol.TypeText {
		b.recordActivity(ctx)
	}
	return nil
}

func (b *Bot) countGroup(ctx context.Context, msg protocol.Message) error {
	switch msg.Type {
	case protocol.TypeJoinGroup, protocol.TypeLeaveGroup, protocol.TypeGroupAllMute, protocol.TypeGroupUserMute:
		return nil
	}
	b.logger.Info("group message",
		logging.Field("group", msg.GroupID.String()),
		logging.Field("sender", msg.SendID.String()),
		logging.Field("type", msg.Type.String()),
		logging.Field("preview", msg.Preview()),
	)
	if msg.Type == protocol.TypeText || msg.Type == protocol.TypeSticker {
		b.recordActivity(ctx)
	}
	return nil
}

func (b *Bot) recordActivity(ctx context.Context) {
	prev, rolled := b.activity.record(b.now())
	if rolled {
		b.saveDayTotal(ctx, prev)
	}
}

type muteNotice struct {
	Muted   bool                `json:"muted"`
	GroupID protocol.OptionalID `json:"groupId"`
}

// trackGroupMute follows whole-group mute notices so sends to a muted group
// are skipped.
func (b *Bot) trackGroupMute(_ context.Context, msg protocol.Message) error {
	if msg.Type != protocol.TypeGroupAllMute {
		return nil
	}
	var notice muteNotice
	if err := json.Unmarshal([]byte(msg.Content), &notice); err != nil {
		return fmt.Errorf("decode mute notice: %w", err)
	}
	groupID := notice.GroupID
	if !groupID.Valid {
		groupID = msg.GroupID
	}
	if !groupID.Valid {
		return nil
	}
	b.api.MarkGroupMuted(groupID.Value, notice.Muted)
	return nil
}

// guardSender feeds conversational messages from other users through the
// flood guard and credits allowed ones.
func (b *Bot) guardSender(ctx context.Context, msg protocol.Message) error {
	if !msg.SendID.Valid || !msg.Type.Conversational() {
		return nil
	}
	sender := msg.SendID.Value
	if sender == b.auth.SubjectID() {
		return nil
	}

	switch b.guard.Observe(ctx, sender) {
	case guard.Blocked:
		return nil
	case guard.FirstOffense:
		if b.store != nil {
			if err := b.store.SetSpamWarnings(ctx, sender, 1, b.now()); err != nil {
				b.logger.Warn("persisting spam warning failed", logging.Field("user_id", sender), logging.Field("error", err.Error()))
			}
		}
		b.warn(ctx, msg, firstOffenseNotice)
		return nil
	case guard.RepeatOffense:
		b.warn(ctx, msg, repeatOffenseNotice)
		return nil
	}

	if b.store == nil {
		return nil
	}
	act, err := b.store.RecordActivity(ctx, sender, b.now())
	if err != nil {
		return fmt.Errorf("record activity for %d: %w", sender, err)
	}
	if act.LeveledUp {
		b.logger.Info("user leveled up",
			logging.Field("user_id", sender),
			logging.Field("from", act.OldLevel),
			logging.Field("to", act.User.Level),
			logging.Field("label", act.User.Label),
		)
	}
	return nil
}

// warn replies in the conversation the offending message came from.
func (b *Bot) warn(ctx context.Context, msg protocol.Message, format string) {
	sender := msg.SendID.Value
	text := fmt.Sprintf(format, cleanName(b.api.Username(ctx, sender)))
	var err error
	if msg.GroupID.Valid {
		_, err = b.api.SendGroupText(ctx, msg.GroupID.Value, text)
	} else {
		_, err = b.api.SendPrivateText(ctx, sender, text)
	}
	if err != nil {
		b.logger.Warn("sending flood warning failed", logging.Field("user_id", sender), logging.Field("error", err.Error()))
	}
}

// saveDayTotal persists a finished day. It runs on the first message of
// the next day, before that message's sender is credited.
func (b *Bot) saveDayTotal(ctx context.Context, total dayTotal) {
	b.saveStat(ctx, total.day, total.count)
}
