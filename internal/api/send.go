package api

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"

	"boxim-bot/internal/logging"
	"boxim-bot/internal/protocol"
	"boxim-bot/internal/rest"
)

type privateSend struct {
	TmpID   string               `json:"tmpId"`
	Content string               `json:"content"`
	Type    protocol.MessageType `json:"type"`
	RecvID  int64                `json:"recvId"`
	Receipt bool                 `json:"receipt"`
}

type groupSend struct {
	TmpID     string               `json:"tmpId"`
	Content   string               `json:"content"`
	Type      protocol.MessageType `json:"type"`
	GroupID   int64                `json:"groupId"`
	AtUserIDs []int64              `json:"atUserIds"`
	Receipt   bool                 `json:"receipt"`
}

type sendResult struct {
	ID protocol.OptionalID `json:"id"`
}

// SendStats counts outbound messages since start.
type SendStats struct {
	Sent     int64
	Failures int64
}

func (c *Client) SendPrivateText(ctx context.Context, userID int64, text string) (protocol.OptionalID, error) {
	return c.SendPrivateMessage(ctx, userID, text, protocol.TypeText)
}

func (c *Client) SendPrivateMessage(ctx context.Context, userID int64, content string, kind protocol.MessageType) (protocol.OptionalID, error) {
	var out sendResult
	err := c.Do(ctx, http.MethodPost, "/api/message/private/send", privateSend{
		TmpID:   newTmpID(),
		Content: content,
		Type:    kind,
		RecvID:  userID,
	}, &out)
	c.countSend(err)
	if err != nil {
		c.logger.Warn("private send failed", logging.Field("user_id", userID), logging.Field("error", err.Error()))
		return protocol.OptionalID{}, err
	}
	return out.ID, nil
}

func (c *Client) SendGroupText(ctx context.Context, groupID int64, text string, atUserIDs ...int64) (protocol.OptionalID, error) {
	return c.SendGroupMessage(ctx, groupID, text, protocol.TypeText, atUserIDs)
}

// SendGroupMessage posts to a group. Groups detected as muted are skipped
// for an hour with ErrGroupMuted.
func (c *Client) SendGroupMessage(ctx context.Context, groupID int64, content string, kind protocol.MessageType, atUserIDs []int64) (protocol.OptionalID, error) {
	if c.GroupMuted(groupID) {
		return protocol.OptionalID{}, ErrGroupMuted
	}
	if atUserIDs == nil {
		atUserIDs = []int64{}
	}
	var out sendResult
	err := c.Do(ctx, http.MethodPost, "/api/message/group/send", groupSend{
		TmpID:     newTmpID(),
		Content:   content,
		Type:      kind,
		GroupID:   groupID,
		AtUserIDs: atUserIDs,
	}, &out)
	c.countSend(err)
	if err != nil {
		if isMuteRejection(err) {
			c.MarkGroupMuted(groupID, true)
		}
		c.logger.Warn("group send failed", logging.Field("group_id", groupID), logging.Field("error", err.Error()))
		return protocol.OptionalID{}, err
	}
	return out.ID, nil
}

// MarkGroupMuted records or clears a mute for groupID.
func (c *Client) MarkGroupMuted(groupID int64, muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if muted {
		c.mutedSince[groupID] = c.now()
		c.logger.Info("group marked muted", logging.Field("group_id", groupID))
		return
	}
	delete(c.mutedSince, groupID)
}

// GroupMuted reports whether groupID was marked muted within the last hour.
func (c *Client) GroupMuted(groupID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	since, ok := c.mutedSince[groupID]
	if !ok {
		return false
	}
	if c.now().Sub(since) > groupMuteTTL {
		delete(c.mutedSince, groupID)
		return false
	}
	return true
}

func (c *Client) MutedGroups() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make([]int64, 0, len(c.mutedSince))
	for id, since := range c.mutedSince {
		if now.Sub(since) <= groupMuteTTL {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Client) SendStats() SendStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SendStats{Sent: c.messagesSent, Failures: c.sendFailures}
}

func (c *Client) countSend(err error) {
	c.mu.Lock()
	if err != nil {
		c.sendFailures++
	} else {
		c.messagesSent++
	}
	c.mu.Unlock()
}

func isMuteRejection(err error) bool {
	var apiErr *rest.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "禁言") || strings.Contains(msg, "muted")
}

// newTmpID is the first 16 decimal digits of a random UUID read as a
// 128-bit integer.
func newTmpID() string {
	id := uuid.New()
	digits := new(big.Int).SetBytes(id[:]).String()
	for len(digits) < tmpIDDigits {
		digits = "0" + digits
	}
	return digits[:tmpIDDigits]
}
