package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const flashSaleDocID = "flash_sale"

// документ настроек, суммы храним строками
type flashSaleProductDoc struct {
	ProductID      string `bson:"productId"`
	DiscountAmount string `bson:"discountAmount"`
}

type flashSaleDoc struct {
	ID                 string                `bson:"_id"`
	Enabled            bool                  `bson:"enabled"`
	DurationHours      float64               `bson:"duration_hours"`
	MinDiscountPercent float64               `bson:"min_discount_percent"`
	MaxProducts        int                   `bson:"max_products"`
	ProductIDs         []string              `bson:"product_ids"`
	Products           []flashSaleProductDoc `bson:"flash_sale_products"`
	EndTime            *time.Time            `bson:"end_time,omitempty"`
}

// Настройки распродажи в MongoDB, один документ
type FlashSaleDB struct {
	mgo  *mongo.Client
	coll *mongo.Collection
}

func NewFlashSaleDB(ctx context.Context, uri string, database string, collection string) (*FlashSaleDB, error) {
	if uri == "" {
		return nil, fmt.Errorf("env REWARDS_MONGO_URL is not set")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err = client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	coll := client.Database(database).Collection(collection)
	return &FlashSaleDB{client, coll}, nil
}

func (f *FlashSaleDB) Close(ctx context.Context) error {
	return f.mgo.Disconnect(ctx)
}

// Если документа нет - распродажа выключена
func (f *FlashSaleDB) GetFlashSale(ctx context.Context) (model.FlashSaleConfig, error) {
	var doc flashSaleDoc
	err := f.coll.FindOne(ctx, bson.M{"_id": flashSaleDocID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.FlashSaleConfig{}, nil
	}
	if err != nil {
		return model.FlashSaleConfig{}, err
	}
	return doc.config()
}

func (f *FlashSaleDB) SaveFlashSale(ctx context.Context, cfg model.FlashSaleConfig) error {
	doc := newFlashSaleDoc(cfg)
	_, err := f.coll.ReplaceOne(ctx, bson.M{"_id": flashSaleDocID}, doc, options.Replace().SetUpsert(true))
	return err
}

func newFlashSaleDoc(cfg model.FlashSaleConfig) flashSaleDoc {
	doc := flashSaleDoc{
		ID:                 flashSaleDocID,
		Enabled:            cfg.Enabled,
		DurationHours:      cfg.DurationHours,
		MinDiscountPercent: cfg.MinDiscountPercent,
		MaxProducts:        cfg.MaxProducts,
		ProductIDs:         cfg.ProductIDs,
		EndTime:            cfg.EndTime,
	}
	for _, p := range cfg.Products {
		doc.Products = append(doc.Products, flashSaleProductDoc{p.ProductID, p.DiscountAmount.String()})
	}
	return doc
}

func (d flashSaleDoc) config() (model.FlashSaleConfig, error) {
	cfg := model.FlashSaleConfig{
		Enabled:            d.Enabled,
		DurationHours:      d.DurationHours,
		MinDiscountPercent: d.MinDiscountPercent,
		MaxProducts:        d.MaxProducts,
		ProductIDs:         d.ProductIDs,
		EndTime:            d.EndTime,
	}
	for _, p := range d.Products {
		amount, err := decimal.NewFromString(p.DiscountAmount)
		if err != nil {
			return model.FlashSaleConfig{}, fmt.Errorf("flash sale product %s: %w", p.ProductID, err)
		}
		cfg.Products = append(cfg.Products, model.FlashSaleProduct{ProductID: p.ProductID, DiscountAmount: amount})
	}
	return cfg, nil
}
