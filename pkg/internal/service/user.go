package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/yeisme/docvault/pkg/internal/encrypt"
	"github.com/yeisme/docvault/pkg/internal/errs"
	"github.com/yeisme/docvault/pkg/internal/model"
)

// ProvisionUser 返回已存在的用户，不存在时生成私钥并以 quota 为上限创建.
func (s *FileService) ProvisionUser(ctx context.Context, id string, quota int64) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err == nil {
		return user, nil
	}

	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	if quota < 0 {
		return nil, fmt.Errorf("invalid quota %d", quota)
	}

	key, err := encrypt.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	user = &model.User{ID: id, PrivateKey: key, StorageQuota: quota}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user %s: %w", id, err)
	}

	s.logger.Info().Str("user_id", id).Int64("quota", quota).Msg("用户已创建")

	return user, nil
}
