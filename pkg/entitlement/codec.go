package entitlement

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// decode builds a typed record from raw attributes. Malformed fields fall back
// to their zero defaults; the returned error joins every field that failed.
func decode(userID string, attrs Attributes) (*Entitlement, error) {
	ent := &Entitlement{
		UserID: userID,
		Tier:   TierFree,
	}
	var errs []error

	if v, ok := attrs[AttrTier]; ok && v != "" {
		t, err := ParseTier(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", AttrTier, err))
		} else {
			ent.Tier = t
		}
	}

	if v, ok := attrs[AttrReadingsUsed]; ok && v != "" {
		n, err := strconv.Atoi(v)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", AttrReadingsUsed, err))
		case n < 0:
			errs = append(errs, fmt.Errorf("%s: negative value %d", AttrReadingsUsed, n))
		default:
			ent.ReadingsUsed = n
		}
	}

	ent.PeriodStart = decodeTime(attrs, AttrPeriodStart, &errs)
	ent.PeriodEnd = decodeTime(attrs, AttrPeriodEnd, &errs)
	ent.BillingEventAt = decodeTime(attrs, AttrBillingEventAt, &errs)

	ent.Status = attrs[AttrStatus]
	ent.CustomerID = attrs[AttrCustomerID]
	ent.SubscriptionID = attrs[AttrSubscriptionID]

	return ent, errors.Join(errs...)
}

func decodeTime(attrs Attributes, name string, errs *[]error) time.Time {
	v, ok := attrs[name]
	if !ok || v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return time.Time{}
	}
	return t.UTC()
}

// encodePeriod returns the attributes for the counter and its period. The
// tier is owned by the billing paths and is never written here.
func encodePeriod(ent *Entitlement) Attributes {
	return Attributes{
		AttrReadingsUsed: strconv.Itoa(ent.ReadingsUsed),
		AttrPeriodStart:  encodeTime(ent.PeriodStart),
		AttrPeriodEnd:    encodeTime(ent.PeriodEnd),
	}
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
