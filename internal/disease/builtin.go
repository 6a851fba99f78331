package disease

// builtinRecords is the class order the bundled meta classifier was trained on.
var builtinRecords = []Record{
	{
		Name:        "Bacterial Leaf Blight",
		Severity:    SeverityHigh,
		Description: "A bacterial disease that causes leaf yellowing and wilting.",
		Treatment:   "Apply copper-based bactericides and ensure proper water drainage.",
	},
	{
		Name:        "Brown Spot",
		Severity:    SeverityMedium,
		Description: "A fungal disease causing brown lesions on leaves.",
		Treatment:   "Use recommended fungicides and maintain proper soil nutrition.",
	},
	{
		Name:        "Healthy",
		Severity:    SeverityNone,
		Description: "The rice leaf is healthy.",
		Treatment:   "No action needed.",
	},
	{
		Name:        "Leaf Blast",
		Severity:    SeverityHigh,
		Description: "A fungal disease that causes elongated grayish lesions on leaves.",
		Treatment:   "Apply fungicides and avoid excess nitrogen fertilizer.",
	},
	{
		Name:        "Leaf Scald",
		Severity:    SeverityMedium,
		Description: "A disease that causes reddish-brown streaks on leaves, leading to drying.",
		Treatment:   "Use resistant varieties and avoid high nitrogen levels.",
	},
	{
		Name:        "Narrow Brown Leaf Spot",
		Severity:    SeverityLow,
		Description: "A fungal disease causing narrow brown spots on leaves.",
		Treatment:   "Apply potassium fertilizer and use disease-resistant varieties.",
	},
	{
		Name:        "Neck Blast",
		Severity:    SeverityHigh,
		Description: "A severe fungal disease that weakens the neck of rice panicles, causing yield loss.",
		Treatment:   "Apply systemic fungicides and use resistant varieties.",
	},
	{
		Name:        "Rice Hispa",
		Severity:    SeverityMedium,
		Description: "An insect pest that scrapes leaf surfaces, reducing photosynthesis.",
		Treatment:   "Use insecticides and introduce natural predators like parasitoid wasps.",
	},
	{
		Name:        "Sheath Blight",
		Severity:    SeverityHigh,
		Description: "A fungal disease affecting rice sheaths, leading to lodging and yield loss.",
		Treatment:   "Apply fungicides and ensure proper spacing between plants.",
	},
	{
		Name:        "Tungro",
		Severity:    SeverityHigh,
		Description: "A viral disease transmitted by leafhoppers, causing yellow-orange discoloration.",
		Treatment:   "Control leafhopper populations and plant resistant rice varieties.",
	},
}

// Default returns the built-in ten-class table.
func Default() *Table {
	t, err := NewTable(builtinRecords)
	if err != nil {
		panic(err) // built-in data is fixed
	}
	return t
}
