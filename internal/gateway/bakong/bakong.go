package bakong

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"

	"genzstore/internal/gateway"
	"genzstore/internal/khqr"
	"genzstore/internal/status"
)

type (
	Config struct {
		// AccountID is the merchant's Bakong account alias (tag 29/01).
		AccountID  string `json:"accountId" mapstructure:"account_id"`
		SchemeGUID string `json:"schemeGuid" mapstructure:"scheme_guid"`
		MName      string `json:"mname" mapstructure:"mname"`
		MCity      string `json:"mcity" mapstructure:"mcity"`
		CCy        string `json:"ccy" mapstructure:"ccy"`

		BaseURL  string `json:"baseUrl" mapstructure:"base_url"`
		Email    string `json:"email" mapstructure:"email"`
		APIToken string `json:"apiToken" mapstructure:"api_token"`

		PNSubKey    string `json:"pn_subkey" mapstructure:"pn_subkey"`
		PNSubSecret string `json:"pn_subsecret" mapstructure:"pn_subsecret"`
		PNUUID      string `json:"pn_uuid" mapstructure:"pn_uuid"`
		PNChannel   string `json:"pn_channel" mapstructure:"pn_channel"`
		PNCipherKey string `json:"pn_cipherKey" mapstructure:"pn_cipherkey"`
	}

	// Bakong assembles KHQR payloads locally and reconciles them against
	// the Bakong open API, with pushed notifications over PubNub.
	Bakong struct {
		AccountID  string
		SchemeGUID string
		MName      string
		MCity      string
		CCy        string

		pnUUID     string
		pnChannels []string

		sub *subscribe

		client *Client
	}
)

var _ gateway.Gateway = (*Bakong)(nil)

// New returns a new Bakong gateway instance.
func New(ctx context.Context, cfg *Config) (*Bakong, error) {
	client := newClient(ctx, &ClientConfig{
		BaseURL:  cfg.BaseURL,
		Email:    cfg.Email,
		APIToken: cfg.APIToken,
	})

	// Notify access token expired.
	go client.notifyAccessTokenExpired(ctx)

	b := &Bakong{
		AccountID:  cfg.AccountID,
		SchemeGUID: cfg.SchemeGUID,
		MName:      cfg.MName,
		MCity:      cfg.MCity,
		CCy:        cfg.CCy,

		pnUUID:     cfg.PNUUID,
		pnChannels: []string{cfg.PNChannel},

		client: client,
	}

	if cfg.PNSubKey != "" {
		pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(b.pnUUID))
		pnCfg.SubscribeKey = cfg.PNSubKey
		pnCfg.SecretKey = cfg.PNSubSecret
		pnCfg.CipherKey = cfg.PNCipherKey

		sub, err := b.newSubscription(ctx, pnCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe to Bakong notification channel: %v", err)
		}
		sub.pn.AddListener(sub.lis)
		if cfg.PNChannel != "" {
			sub.pn.Subscribe().Channels(b.pnChannels).Execute()
		}
		b.sub = sub
	}

	return b, nil
}

func (b *Bakong) GetProvider() gateway.Provider {
	return gateway.ProviderBakong
}

// CreateTransaction assembles the KHQR payload for req. No network call is
// needed: the payload md5 is the reference the open API indexes payments by.
func (b *Bakong) CreateTransaction(ctx context.Context, req *khqr.PaymentRequest) (*gateway.Checkout, error) {
	if req.AccountID == "" {
		req.AccountID = b.AccountID
	}
	if req.SchemeGUID == "" {
		req.SchemeGUID = b.SchemeGUID
	}
	if req.Name == "" {
		req.Name = b.MName
	}
	if req.City == "" {
		req.City = b.MCity
	}
	if req.Currency == "" {
		req.Currency = b.CCy
	}

	payload, err := khqr.Assemble(req)
	if err != nil {
		return nil, err
	}

	b.addChannel(ctx, payload.ReferenceHash)

	return &gateway.Checkout{
		Provider:   gateway.ProviderBakong,
		OrderID:    req.OrderID,
		QRString:   payload.Raw,
		Reference:  payload.ReferenceHash,
		BillNumber: payload.BillNumber,
		Amount:     req.Amount,
		Currency:   req.Currency,
		ExpiresAt:  payload.ExpiresAt,
	}, nil
}

func (b *Bakong) CheckTransaction(ctx context.Context, reference string) (*status.Transaction, error) {
	return b.client.checkTransactionByMD5(ctx, reference)
}

func (b *Bakong) SetTransactionChannel(ch chan *status.Transaction) {
	if b.sub != nil {
		b.sub.ch = ch
	}
}

func (b *Bakong) Close(ctx context.Context) error {
	if b.sub != nil {
		b.sub.pn.UnsubscribeAll()
	}
	return nil
}

type subscribe struct {
	pn  *pubnub.PubNub
	lis *pubnub.Listener
	ch  chan *status.Transaction
}

func (b *Bakong) newSubscription(ctx context.Context, pnCfg *pubnub.Config) (*subscribe, error) {
	sub := &subscribe{
		pn:  pubnub.NewPubNub(pnCfg),
		lis: pubnub.NewListener(),
	}

	go sub.processSubscription(ctx)

	return sub, nil
}

func (s *subscribe) processSubscription(ctx context.Context) error {
	listener := s.lis
	for {
		select {
		case st := <-listener.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				log.Println("connected to pubnub")

			case pubnub.PNReconnectedCategory:
				log.Println("reconnected to pubnub")

			case pubnub.PNDisconnectedCategory:
				log.Println("disconnected from pubnub")

			case pubnub.PNAccessDeniedCategory:
				log.Println("access denied connect to pubnub")

			case pubnub.PNTimeoutCategory:
				log.Println("timeout connect to pubnub")

			default:
				log.Println("pubnub status category:", st.Category)
			}

		case message := <-listener.Message:
			raw, ok := message.Message.(string)
			if !ok {
				log.Println("unexpected pubnub message type")
				continue
			}

			var p notification
			dec := json.NewDecoder(strings.NewReader(raw))
			if err := dec.Decode(&p); err != nil {
				log.Println(err)
				continue
			}

			tran, err := p.ToDomain()
			if err != nil {
				log.Println(err)
				continue
			}
			if s.ch != nil {
				s.ch <- tran
			}

		case <-ctx.Done():
			log.Println("close subscribe")
			return nil
		}
	}
}

// notification is the pushed payment event for a settled KHQR transaction.
type notification struct {
	Hash       string          `json:"hash"`
	BillNumber string          `json:"billNumber"`
	Payer      string          `json:"fromAccountId"`
	Ccy        string          `json:"currency"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  string          `json:"createdDateTime"`
}

func (p *notification) ToDomain() (*status.Transaction, error) {
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", p.CreatedAt, time.Local)
	if err != nil {
		return nil, err
	}

	return &status.Transaction{
		RefID:      p.Hash,
		BillNumber: p.BillNumber,
		Amount:     p.Amount,
		Ccy:        p.Ccy,
		Payer:      p.Payer,
		Provider:   string(gateway.ProviderBakong),
		PaidAt:     ts,
	}, nil
}

func (b *Bakong) addChannel(_ context.Context, reference string) {
	if b.sub == nil {
		return
	}

	channel := fmt.Sprintf("%s_%s", b.AccountID, reference)

	// Get last 2 minutes timetoken.
	tt := time.Now().Add(time.Duration(-2*time.Minute)).Unix() * 10000

	b.sub.pn.Subscribe().Channels([]string{channel}).Timetoken(tt).Execute()
}

func (b *Bakong) Unsubscribe(ctx context.Context, reference string) {
	if b.sub == nil {
		return
	}
	b.sub.pn.Unsubscribe().Channels([]string{fmt.Sprintf("%s_%s", b.AccountID, reference)}).Execute()
}
