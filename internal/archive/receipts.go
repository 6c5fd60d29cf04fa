package archive

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/receipt-flow/internal/model"
)

// Receipts loads every receipt in the library in ascending primary-key
// order, with category, subcategory and tag names resolved. Dangling
// category references leave the corresponding field nil rather than
// failing the load.
func (a *Archive) Receipts(ctx context.Context) ([]model.Receipt, error) {
	tagsByReceipt, err := a.loadTags(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT r.Z_PK, r.ZMERCHANT, r.ZNOTES, r.ZPATH, r.ZAMOUNT, r.ZAMOUNTASSTRING, r.ZDATE,
		       c.Z_PK, c.ZNAME,
		       s.Z_PK, s.ZNAME
		FROM ZRECEIPT r
		LEFT JOIN ZCATEGORY c ON c.Z_PK = r.ZCATEGORY
		LEFT JOIN ZSUBCATEGORY s ON s.Z_PK = r.ZSUBCATEGORY
		ORDER BY r.Z_PK ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var receipts []model.Receipt
	for rows.Next() {
		var (
			r                        model.Receipt
			merchant, notes, amountS sql.NullString
			path                     sql.NullString
			amount                   sql.NullFloat64
			timestamp                sql.NullInt64
			catPK, subPK             sql.NullInt64
			catName, subName         sql.NullString
		)

		err := rows.Scan(&r.PK, &merchant, &notes, &path, &amount, &amountS, &timestamp,
			&catPK, &catName, &subPK, &subName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}

		r.Merchant = merchant.String
		r.Notes = notes.String
		r.Path = path.String
		r.Amount = amount.Float64
		r.AmountString = amountS.String
		r.Timestamp = timestamp.Int64
		if catPK.Valid && catName.Valid {
			r.Category = &model.Category{PK: int(catPK.Int64), Name: catName.String}
		}
		if subPK.Valid && subName.Valid {
			r.SubCategory = &model.Category{PK: int(subPK.Int64), Name: subName.String}
		}
		r.Tags = tagsByReceipt[r.PK]

		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipts: %w", err)
	}

	return receipts, nil
}

// loadTags reads the receipt/tag join table once and groups tag names
// by receipt primary key.
func (a *Archive) loadTags(ctx context.Context) (map[int][]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT rt.Z_14RECEIPTS1, t.ZNAME
		FROM Z_14TAGS rt
		JOIN ZTAG t ON t.Z_PK = rt.Z_18TAGS
		ORDER BY rt.Z_14RECEIPTS1, t.Z_PK
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipt tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tags := make(map[int][]string)
	for rows.Next() {
		var receiptPK int
		var name string
		if err := rows.Scan(&receiptPK, &name); err != nil {
			return nil, fmt.Errorf("failed to scan receipt tag: %w", err)
		}
		tags[receiptPK] = append(tags[receiptPK], name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt tags: %w", err)
	}

	return tags, nil
}
