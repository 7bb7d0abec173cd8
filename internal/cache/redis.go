package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/skybooking/config"
	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client     *redis.Client
	flightsTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, flightsTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:     redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		flightsTTL: flightsTTL,
	}
}

func NewRedisCacheFromClient(client *redis.Client, flightsTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, flightsTTL: flightsTTL}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetFlightOffers returns nil, nil on a cache miss.
func (c *RedisCache) GetFlightOffers(ctx context.Context, query domain.FlightQuery) ([]domain.FlightOffer, error) {
	var offers []domain.FlightOffer
	found, err := c.getJSON(ctx, offersKey(query), &offers)
	if err != nil || !found {
		return nil, err
	}
	return offers, nil
}

func (c *RedisCache) SetFlightOffers(ctx context.Context, query domain.FlightQuery, offers []domain.FlightOffer) error {
	return c.setJSON(ctx, offersKey(query), offers, c.flightsTTL)
}

// GetAirports returns nil, nil on a cache miss.
func (c *RedisCache) GetAirports(ctx context.Context, keyword string) ([]domain.Airport, error) {
	var airports []domain.Airport
	found, err := c.getJSON(ctx, airportsKey(keyword), &airports)
	if err != nil || !found {
		return nil, err
	}
	return airports, nil
}

func (c *RedisCache) SetAirports(ctx context.Context, keyword string, airports []domain.Airport) error {
	return c.setJSON(ctx, airportsKey(keyword), airports, 24*time.Hour)
}

// AcquirePaymentLock marks a booking as having a payment in flight.
// It reports false when another request already holds the lock.
func (c *RedisCache) AcquirePaymentLock(ctx context.Context, bookingID string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, paymentLockKey(bookingID), "locked", ttl).Result()
}

func (c *RedisCache) ReleasePaymentLock(ctx context.Context, bookingID string) error {
	return c.client.Del(ctx, paymentLockKey(bookingID)).Err()
}

// MarkEventProcessed records a provider event id and reports whether this is
// the first time it has been seen.
func (c *RedisCache) MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, webhookEventKey(eventID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// ForgetEvent drops a recorded event id so a provider retry is processed again.
func (c *RedisCache) ForgetEvent(ctx context.Context, eventID string) error {
	return c.client.Del(ctx, webhookEventKey(eventID)).Err()
}

func (c *RedisCache) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func offersKey(q domain.FlightQuery) string {
	return fmt.Sprintf("cache:offers:%s:%s:%s:%s:%d:%d",
		strings.ToUpper(q.Origin), strings.ToUpper(q.Destination), q.DepartureDate, q.ReturnDate, q.Adults, q.Max)
}

func airportsKey(keyword string) string {
	return "cache:airports:" + strings.ToUpper(keyword)
}

func paymentLockKey(bookingID string) string {
	return fmt.Sprintf("lock:booking:%s:payment", bookingID)
}

func webhookEventKey(eventID string) string {
	return "webhook:event:" + eventID
}
