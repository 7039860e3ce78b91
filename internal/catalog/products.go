package catalog

import "github.com/shopspring/decimal"

// Default returns the built-in storefront collection.
func Default() *Catalog {
	c, err := New(defaultProducts())
	if err != nil {
		panic(err)
	}
	return c
}

func defaultProducts() []Product {
	return []Product{
		{
			ID:          "1",
			Name:        "The Ethereal Silk Gown",
			Price:       decimal.RequireFromString("295.00"),
			Category:    "Evening Wear",
			Description: "A floor-length silk chiffon gown with a deep V-neckline and flowing silhouette. Perfect for gala evenings.",
			ImageURL:    "https://images.unsplash.com/photo-1595777457583-95e059d581b8?q=80&w=1000&auto=format&fit=crop",
		},
		{
			ID:          "2",
			Name:        "Midnight Velvet Cocktail Dress",
			Price:       decimal.RequireFromString("185.00"),
			Category:    "Cocktail",
			Description: "Luxurious crushed velvet in midnight blue with a fitted bodice and off-shoulder sleeves.",
			ImageURL:    "https://images.unsplash.com/photo-1572804013309-59a88b7e92f1?q=80&w=1000&auto=format&fit=crop",
		},
		{
			ID:          "3",
			Name:        "Summer Breeze Linen Maxi",
			Price:       decimal.RequireFromString("145.00"),
			Category:    "Casual Luxe",
			Description: "Breathable linen blend with intricate embroidery details and a relaxed fit for warm days.",
			ImageURL:    "https://images.unsplash.com/photo-1515372039744-b8f02a3ae446?q=80&w=1000&auto=format&fit=crop",
		},
		{
			ID:          "4",
			Name:        "Scarlet Satin Slip",
			Price:       decimal.RequireFromString("210.00"),
			Category:    "Evening Wear",
			Description: "Minimalist 90s inspired slip dress in striking scarlet satin. Bias cut for a perfect drape.",
			ImageURL:    "https://images.unsplash.com/photo-1539008835657-9e8e9680c956?q=80&w=1000&auto=format&fit=crop",
		},
		{
			ID:          "5",
			Name:        "Floral Chiffon Midi",
			Price:       decimal.RequireFromString("165.00"),
			Category:    "Daywear",
			Description: "Romantic floral print on lightweight chiffon with ruffled sleeves and a tiered skirt.",
			ImageURL:    "https://images.unsplash.com/photo-1612336307429-8a898d10e223?q=80&w=1000&auto=format&fit=crop",
		},
		{
			ID:          "6",
			Name:        "Structured Wool Blend Shift",
			Price:       decimal.RequireFromString("225.00"),
			Category:    "Workwear",
			Description: "Modern architectural lines in a premium wool blend. Features unique asymmetric detailing.",
			ImageURL:    "https://images.unsplash.com/photo-1585487000160-6ebcfceb0d03?q=80&w=1000&auto=format&fit=crop",
		},
	}
}
