package menu

// SpiceBay returns the full menu for the Spice Bay Irvine location. Prices
// are exclusive of tax; names must match the spoken menu verbatim because
// the cart compares them as exact strings.
func SpiceBay() *PriceMap {
	return New([]Section{
		{
			Title: "Dosas",
			Items: []Item{
				{Name: "Plain Dosa", Price: 9.99, Description: "classic crispy rice and lentil crepe"},
				{Name: "Masala Dosa", Price: 11.49, Description: "filled with spiced potato and onion"},
				{Name: "Mysore Masala Dosa", Price: 12.49, Description: "red chutney spread, potato filling"},
				{Name: "Onion Dosa", Price: 10.99},
				{Name: "Ghee Roast Dosa", Price: 11.99, Description: "extra-crisp, roasted in ghee"},
				{Name: "Paper Dosa", Price: 10.99, Description: "extra-thin and extra-long"},
				{Name: "Rava Dosa", Price: 11.49, Description: "lacy semolina crepe"},
				{Name: "Onion Rava Masala Dosa", Price: 12.99},
				{Name: "Cheese Dosa", Price: 11.99},
				{Name: "Chili Cheese Dosa", Price: 12.49},
				{Name: "Paneer Dosa", Price: 12.99},
				{Name: "Spring Dosa", Price: 12.99, Description: "stuffed with spiced vegetables"},
				{Name: "Set Dosa", Price: 10.99, Description: "three soft spongy dosas"},
				{Name: "Pesarattu", Price: 11.99, Description: "green moong dal dosa"},
			},
		},
		{
			Title: "Idli & Vada",
			Items: []Item{
				{Name: "Idli", Price: 7.49, Description: "two steamed rice cakes"},
				{Name: "Ghee Podi Idli", Price: 8.99},
				{Name: "Mini Idli Sambar", Price: 8.99, Description: "button idlis soaked in sambar"},
				{Name: "Medu Vada", Price: 7.99, Description: "two crispy lentil doughnuts"},
				{Name: "Sambar Vada", Price: 8.99},
				{Name: "Dahi Vada", Price: 8.99, Description: "vada in seasoned yogurt"},
				{Name: "Idli Vada Combo", Price: 9.49},
			},
		},
		{
			Title: "Uthappam",
			Items: []Item{
				{Name: "Plain Uthappam", Price: 10.49, Description: "thick savory pancake"},
				{Name: "Onion Uthappam", Price: 11.49},
				{Name: "Tomato Uthappam", Price: 11.49},
				{Name: "Mixed Vegetable Uthappam", Price: 12.49},
				{Name: "Podi Uthappam", Price: 11.99},
			},
		},
		{
			Title: "Chaat & Starters",
			Items: []Item{
				{Name: "Samosa", Price: 6.49, Description: "two pastries with spiced potato"},
				{Name: "Samosa Chaat", Price: 8.99},
				{Name: "Pani Puri", Price: 7.99},
				{Name: "Bhel Puri", Price: 7.99},
				{Name: "Dahi Puri", Price: 8.49},
				{Name: "Cut Mirchi", Price: 7.99, Description: "battered chili fritters"},
				{Name: "Gobi Manchurian", Price: 11.99, Description: "crispy cauliflower, Indo-Chinese style"},
				{Name: "Paneer 65", Price: 12.99},
				{Name: "Chilli Paneer", Price: 12.99},
			},
		},
		{
			Title: "Curries",
			Items: []Item{
				{Name: "Paneer Butter Masala", Price: 14.99},
				{Name: "Palak Paneer", Price: 14.49},
				{Name: "Chana Masala", Price: 12.99},
				{Name: "Dal Tadka", Price: 11.99},
				{Name: "Dal Makhani", Price: 13.49},
				{Name: "Aloo Gobi", Price: 12.99},
				{Name: "Bhindi Masala", Price: 13.49},
				{Name: "Malai Kofta", Price: 14.49},
				{Name: "Vegetable Korma", Price: 13.49},
				{Name: "Kadai Paneer", Price: 14.49},
			},
		},
		{
			Title: "Rice & Biryani",
			Items: []Item{
				{Name: "Vegetable Biryani", Price: 13.99, Description: "served with raita"},
				{Name: "Paneer Biryani", Price: 14.99},
				{Name: "Curd Rice", Price: 9.99},
				{Name: "Lemon Rice", Price: 9.99},
				{Name: "Tamarind Rice", Price: 9.99},
				{Name: "Bisi Bele Bath", Price: 11.49, Description: "spiced lentil rice"},
				{Name: "Jeera Rice", Price: 6.99},
				{Name: "Steamed Basmati Rice", Price: 4.99},
			},
		},
		{
			Title: "Breads",
			Items: []Item{
				{Name: "Butter Naan", Price: 3.99},
				{Name: "Garlic Naan", Price: 4.49},
				{Name: "Tandoori Roti", Price: 3.49},
				{Name: "Aloo Paratha", Price: 6.99},
				{Name: "Poori Bhaji", Price: 10.49, Description: "two puffed breads with potato curry"},
				{Name: "Chapati Kurma", Price: 10.99},
			},
		},
		{
			Title: "South Indian Specials",
			Items: []Item{
				{Name: "Pongal", Price: 9.99, Description: "rice and moong dal porridge with pepper and ghee"},
				{Name: "Upma", Price: 8.99},
				{Name: "Poha", Price: 8.49},
				{Name: "Kothu Parotta", Price: 12.99, Description: "shredded parotta stir-fried with spices"},
				{Name: "Parotta Kurma", Price: 11.49},
			},
		},
		{
			Title: "Beverages",
			Items: []Item{
				{Name: "Mango Lassi", Price: 6.49},
				{Name: "Sweet Lassi", Price: 5.99},
				{Name: "Salt Lassi", Price: 5.99},
				{Name: "Madras Filter Coffee", Price: 4.49},
				{Name: "Masala Chai", Price: 4.49},
				{Name: "Badam Milk", Price: 5.49},
				{Name: "Buttermilk", Price: 4.49, Description: "spiced neer mor"},
				{Name: "Fresh Lime Soda", Price: 4.99},
				{Name: "Mango Juice", Price: 5.49},
				{Name: "Bottled Water", Price: 1.99},
			},
		},
		{
			Title: "Desserts",
			Items: []Item{
				{Name: "Gulab Jamun", Price: 5.99, Description: "two pieces"},
				{Name: "Rasmalai", Price: 6.49},
				{Name: "Kesari", Price: 5.49, Description: "saffron semolina pudding"},
				{Name: "Payasam", Price: 5.99},
				{Name: "Mysore Pak", Price: 5.99},
				{Name: "Carrot Halwa", Price: 6.49},
				{Name: "Falooda", Price: 7.49},
			},
		},
	})
}
