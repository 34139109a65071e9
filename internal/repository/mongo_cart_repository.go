package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fjod/storefront/internal/domain"
)

const cartsCollection = "carts"

// cartTTL bounds how long an untouched cart survives.
const cartTTL = 90 * 24 * time.Hour

type cartDocument struct {
	SessionKey string         `bson:"session_key"`
	Items      []itemDocument `bson:"items"`
	Version    int64          `bson:"version"`
	CreatedAt  time.Time      `bson:"created_at"`
	UpdatedAt  time.Time      `bson:"updated_at"`
}

type itemDocument struct {
	ProductID string            `bson:"product_id"`
	Quantity  int               `bson:"quantity"`
	Snapshot  *snapshotDocument `bson:"snapshot,omitempty"`
	AddedAt   time.Time         `bson:"added_at"`
}

// snapshotDocument stores the price as a decimal string; bson has no
// encoder for decimal.Decimal.
type snapshotDocument struct {
	ID          string    `bson:"id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	Price       string    `bson:"price"`
	Image       string    `bson:"image"`
	Category    string    `bson:"category"`
	RatingRate  *float64  `bson:"rating_rate,omitempty"`
	RatingCount int       `bson:"rating_count,omitempty"`
	InStock     bool      `bson:"in_stock"`
	CapturedAt  time.Time `bson:"captured_at"`
}

type MongoCartRepository struct {
	collection *mongo.Collection
}

func NewMongoCartRepository(db *mongo.Database) *MongoCartRepository {
	return &MongoCartRepository{collection: db.Collection(cartsCollection)}
}

func (m *MongoCartRepository) GetCart(ctx context.Context, sessionKey string) (*domain.Cart, error) {
	var doc cartDocument

	err := m.collection.FindOne(ctx, bson.M{"session_key": sessionKey}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	cart, err := doc.toDomain()
	if err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}
	return cart, nil
}

func (m *MongoCartRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	doc := newCartDocument(cart)
	doc.Version = cart.Version + 1

	if cart.Version == 0 {
		_, err := m.collection.InsertOne(ctx, doc)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrVersionConflict
			}
			return fmt.Errorf("failed to insert cart: %w", err)
		}
		cart.Version = doc.Version
		return nil
	}

	filter := bson.M{"session_key": cart.SessionKey, "version": cart.Version}
	result, err := m.collection.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return fmt.Errorf("failed to replace cart: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrVersionConflict
	}

	cart.Version = doc.Version
	return nil
}

func (m *MongoCartRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(cartTTL.Seconds())),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func newCartDocument(cart *domain.Cart) cartDocument {
	doc := cartDocument{
		SessionKey: cart.SessionKey,
		Items:      make([]itemDocument, len(cart.Items)),
		Version:    cart.Version,
		CreatedAt:  cart.CreatedAt,
		UpdatedAt:  cart.UpdatedAt,
	}
	for i, item := range cart.Items {
		doc.Items[i] = itemDocument{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		}
		if s := item.Snapshot; s != nil {
			sd := &snapshotDocument{
				ID:          s.ID,
				Name:        s.Name,
				Description: s.Description,
				Price:       s.Price.String(),
				Image:       s.Image,
				Category:    s.Category,
				InStock:     s.InStock,
				CapturedAt:  s.CapturedAt,
			}
			if s.Rating != nil {
				rate := s.Rating.Rate
				sd.RatingRate = &rate
				sd.RatingCount = s.Rating.Count
			}
			doc.Items[i].Snapshot = sd
		}
	}
	return doc
}

func (d cartDocument) toDomain() (*domain.Cart, error) {
	cart := &domain.Cart{
		SessionKey: d.SessionKey,
		Items:      make([]domain.CartItem, len(d.Items)),
		Version:    d.Version,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	for i, item := range d.Items {
		cart.Items[i] = domain.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		}
		if sd := item.Snapshot; sd != nil {
			price, err := decimal.NewFromString(sd.Price)
			if err != nil {
				return nil, fmt.Errorf("product %s price %q: %w", item.ProductID, sd.Price, err)
			}
			s := &domain.ProductSnapshot{
				ID:          sd.ID,
				Name:        sd.Name,
				Description: sd.Description,
				Price:       price,
				Image:       sd.Image,
				Category:    sd.Category,
				InStock:     sd.InStock,
				CapturedAt:  sd.CapturedAt,
			}
			if sd.RatingRate != nil {
				s.Rating = &domain.Rating{Rate: *sd.RatingRate, Count: sd.RatingCount}
			}
			cart.Items[i].Snapshot = s
		}
	}
	return cart, nil
}
