package services

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
	"github.com/tradepost/backend/internal/repository"
)

// ReferralQRService renders an account's referral signup link as a QR code
type ReferralQRService struct {
	accounts      repository.AccountRepository
	publicBaseURL string
}

func NewReferralQRService(accounts repository.AccountRepository, publicBaseURL string) *ReferralQRService {
	return &ReferralQRService{
		accounts:      accounts,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// ReferralLink returns the signup URL carrying the account's referral code
func (s *ReferralQRService) ReferralLink(ctx context.Context, accountID string) (string, error) {
	account, err := s.accounts.GetAccount(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrAccountNotFound
	}
	if err != nil {
		return "", err
	}
	return s.publicBaseURL + "/signup?ref=" + url.QueryEscape(account.ReferralCode), nil
}

// GenerateReferralQR returns the referral link and a PNG QR code of it
func (s *ReferralQRService) GenerateReferralQR(ctx context.Context, accountID string, size int) (string, []byte, error) {
	link, err := s.ReferralLink(ctx, accountID)
	if err != nil {
		return "", nil, err
	}
	if size <= 0 {
		size = 256
	}

	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		return "", nil, err
	}
	return link, png, nil
}
