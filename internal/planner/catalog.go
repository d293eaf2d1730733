package planner

import "github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"

// PainPoint is one audience complaint with the ingredients that address it
// and the vocabulary scripts use to talk about it.
type PainPoint struct {
	ID                     domain.PainPointID
	Ingredients            []string
	PrimaryIngredients     []string
	Mechanism              string
	StatisticalHook        string
	EmotionalHooks         []string
	EmotionalAmplification []string
	DemographicImpact      float64
	ViralPotential         float64
	RevenueMultiplier      float64
}

// ingredientAliases lists spellings that refer to the same ingredient. The
// key is the canonical name used everywhere else.
var ingredientAliases = map[string][]string{
	"coq10":               {"co-q10", "coenzyme q10", "co q10", "coq 10"},
	"ubiquinol":           {},
	"pqq":                 {"pyrroloquinoline quinone"},
	"b12":                 {"vitamin b12", "b-12", "methylcobalamin"},
	"iron":                {"ferrous bisglycinate"},
	"rhodiola":            {"rhodiola rosea"},
	"nad+":                {"nad", "nmn", "nicotinamide riboside"},
	"magnesium":           {"magnesium glycinate", "mag glycinate"},
	"melatonin":           {},
	"l-theanine":          {"theanine", "l theanine"},
	"glycine":             {},
	"valerian":            {"valerian root"},
	"lions mane":          {"lion's mane", "lions-mane", "hericium"},
	"omega-3":             {"omega 3", "fish oil", "dha", "epa"},
	"bacopa":              {"bacopa monnieri"},
	"ginkgo":              {"ginkgo biloba"},
	"phosphatidylserine":  {"ps100"},
	"berberine":           {},
	"chromium":            {"chromium picolinate"},
	"inositol":            {"myo-inositol", "myo inositol"},
	"apple cider vinegar": {"acv"},
	"ashwagandha":         {"ksm-66", "ksm 66"},
	"saffron":             {},
	"5-htp":               {"5htp", "5 htp"},
	"vitamin d":           {"vitamin d3", "d3", "cholecalciferol"},
	"turmeric":            {"curcumin"},
	"boswellia":           {},
	"quercetin":           {},
	"collagen":            {"collagen peptides"},
	"dim":                 {"diindolylmethane"},
	"maca":                {"maca root"},
	"vitex":               {"chasteberry"},
	"zinc":                {},
	"evening primrose":    {"evening primrose oil"},
}

// Catalog holds the seven pain points.
var Catalog = []PainPoint{
	{
		ID:                 domain.ChronicFatigue,
		Ingredients:        []string{"coq10", "ubiquinol", "pqq", "b12", "iron", "rhodiola", "nad+", "ashwagandha"},
		PrimaryIngredients: []string{"coq10", "ubiquinol", "pqq"},
		Mechanism:          "Cellular energy depends on mitochondria turning food into ATP; when they slow down, so do you.",
		StatisticalHook:    "76% of adults say they feel tired most days of the week.",
		EmotionalHooks: []string{
			"Still exhausted by 2pm even after eight hours of sleep?",
			"Your coffee stopped working and nobody told you why.",
			"Tired of being tired? Your cells might be running on empty.",
		},
		EmotionalAmplification: []string{
			"missing your kids' games because you're too drained to move",
			"faking energy in every meeting and crashing the moment you get home",
			"feeling twenty years older than you are",
		},
		DemographicImpact: 92,
		ViralPotential:    94,
		RevenueMultiplier: 1.3,
	},
	{
		ID:                 domain.SleepEpidemic,
		Ingredients:        []string{"magnesium", "melatonin", "l-theanine", "glycine", "valerian", "ashwagandha"},
		PrimaryIngredients: []string{"magnesium", "melatonin", "l-theanine"},
		Mechanism:          "Deep sleep needs a calm nervous system and a steady melatonin rhythm.",
		StatisticalHook:    "1 in 3 adults doesn't get enough sleep.",
		EmotionalHooks: []string{
			"Wide awake at 3am with your mind racing again?",
			"You're not lazy. You haven't slept properly in years.",
		},
		EmotionalAmplification: []string{
			"lying in the dark counting the hours until your alarm",
			"snapping at the people you love because you're running on fumes",
		},
		DemographicImpact: 90,
		ViralPotential:    89,
		RevenueMultiplier: 1.2,
	},
	{
		ID:                 domain.BrainFogMemory,
		Ingredients:        []string{"lions mane", "omega-3", "bacopa", "ginkgo", "phosphatidylserine", "pqq", "b12"},
		PrimaryIngredients: []string{"lions mane", "bacopa", "phosphatidylserine"},
		Mechanism:          "Focus and recall rely on healthy neuron signalling and nerve growth factor.",
		StatisticalHook:    "Over 600 million people report regular brain fog.",
		EmotionalHooks: []string{
			"Walked into a room and forgot why, again?",
			"Losing words mid-sentence isn't just getting older.",
		},
		EmotionalAmplification: []string{
			"rereading the same email five times before it sinks in",
			"worrying your memory is slipping faster than it should",
		},
		DemographicImpact: 85,
		ViralPotential:    87,
		RevenueMultiplier: 1.25,
	},
	{
		ID:                 domain.MetabolicDamage,
		Ingredients:        []string{"berberine", "chromium", "inositol", "apple cider vinegar", "magnesium"},
		PrimaryIngredients: []string{"berberine", "chromium", "inositol"},
		Mechanism:          "Stable blood sugar keeps insulin low so the body can burn stored fat.",
		StatisticalHook:    "88% of adults have at least one marker of poor metabolic health.",
		EmotionalHooks: []string{
			"Eating clean and still gaining weight?",
			"Those 4pm sugar cravings are a blood sugar problem.",
		},
		EmotionalAmplification: []string{
			"avoiding photos because you don't recognise yourself",
			"doing everything right and watching the scale go up anyway",
		},
		DemographicImpact: 88,
		ViralPotential:    91,
		RevenueMultiplier: 1.35,
	},
	{
		ID:                 domain.AnxietyDepression,
		Ingredients:        []string{"ashwagandha", "saffron", "l-theanine", "5-htp", "magnesium", "vitamin d", "rhodiola"},
		PrimaryIngredients: []string{"ashwagandha", "saffron", "5-htp"},
		Mechanism:          "A calmer stress response means lower cortisol and steadier mood chemistry.",
		StatisticalHook:    "Anxiety affects 40 million adults every year.",
		EmotionalHooks: []string{
			"That knot in your chest every morning has a name.",
			"Stressed out from the moment you wake up?",
		},
		EmotionalAmplification: []string{
			"cancelling plans because the thought of going out is too much",
			"lying awake replaying every conversation from the day",
		},
		DemographicImpact: 87,
		ViralPotential:    86,
		RevenueMultiplier: 1.15,
	},
	{
		ID:                 domain.ChronicInflammation,
		Ingredients:        []string{"turmeric", "omega-3", "boswellia", "quercetin", "collagen"},
		PrimaryIngredients: []string{"turmeric", "boswellia", "quercetin"},
		Mechanism:          "Calming inflammatory signalling eases stiffness, swelling and joint pain.",
		StatisticalHook:    "Chronic inflammation is linked to 3 of 5 deaths worldwide.",
		EmotionalHooks: []string{
			"Waking up stiff and sore every single day?",
			"Your joints shouldn't sound like bubble wrap.",
		},
		EmotionalAmplification: []string{
			"skipping the activities you love because everything aches",
			"feeling like your body is working against you",
		},
		DemographicImpact: 80,
		ViralPotential:    82,
		RevenueMultiplier: 1.1,
	},
	{
		ID:                 domain.HormonalImbalance,
		Ingredients:        []string{"dim", "maca", "vitex", "zinc", "evening primrose", "inositol", "vitamin d"},
		PrimaryIngredients: []string{"dim", "maca", "vitex"},
		Mechanism:          "Hormones work as a system; supporting metabolism of excess estrogen restores balance.",
		StatisticalHook:    "80% of women will experience a hormonal imbalance.",
		EmotionalHooks: []string{
			"Mood swings, breakouts and bloating every month?",
			"You're not crazy. Your hormones are out of balance.",
		},
		EmotionalAmplification: []string{
			"feeling like a stranger in your own body",
			"being told it's all in your head by doctor after doctor",
		},
		DemographicImpact: 83,
		ViralPotential:    88,
		RevenueMultiplier: 1.2,
	},
}

// mechanisms explains single ingredients for script narration.
var mechanisms = map[string]string{
	"coq10":       "CoQ10 feeds the mitochondrial electron transport chain that produces ATP.",
	"ubiquinol":   "Ubiquinol is the active form of CoQ10 your cells can use without converting it.",
	"pqq":         "PQQ signals your cells to build new mitochondria.",
	"magnesium":   "Magnesium calms NMDA receptors so the nervous system can switch off.",
	"melatonin":   "Melatonin tells your brain it is night and resets the sleep clock.",
	"lions mane":  "Lion's mane stimulates nerve growth factor for sharper recall.",
	"berberine":   "Berberine activates AMPK, the metabolic master switch.",
	"ashwagandha": "Ashwagandha lowers cortisol, the stress hormone keeping you wired.",
	"turmeric":    "Curcumin in turmeric blocks the NF-kB inflammation pathway.",
	"dim":         "DIM helps the liver clear excess estrogen.",
	"omega-3":     "Omega-3 fats rebuild cell membranes in the brain and joints.",
}

const genericMechanism = "Targeted nutrients support the body's own repair and energy systems."
