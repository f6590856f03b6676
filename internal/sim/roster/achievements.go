package roster

// Points granted per advancement. Unlisted advancements score nothing.
var awardPoints = map[string]int{
	"story/mine_stone":            1,
	"story/upgrade_tools":         1,
	"story/smelt_iron":            2,
	"story/obtain_armor":          2,
	"story/lava_bucket":           2,
	"story/iron_tools":            2,
	"story/deflect_arrow":         3,
	"story/form_obsidian":         3,
	"story/mine_diamond":          5,
	"story/enter_the_nether":      5,
	"story/shiny_gear":            5,
	"story/enchant_item":          5,
	"story/cure_zombie_villager":  8,
	"story/follow_ender_eye":      8,
	"story/enter_the_end":         10,
	"nether/return_to_sender":     5,
	"nether/find_bastion":         5,
	"nether/obtain_blaze_rod":     6,
	"nether/find_fortress":        6,
	"nether/obtain_crying_obsidian": 6,
	"nether/distract_piglin":      4,
	"nether/ride_strider":         4,
	"nether/uneasy_alliance":      12,
	"nether/loot_bastion":         8,
	"nether/use_lodestone":        4,
	"nether/summon_wither":        15,
	"nether/brew_potion":          8,
	"nether/create_beacon":        15,
	"nether/all_potions":          20,
	"nether/create_full_beacon":   20,
	"end/kill_dragon":             25,
	"end/dragon_egg":              10,
	"end/enter_end_gateway":       8,
	"end/respawn_dragon":          12,
	"end/dragon_breath":           8,
	"end/find_end_city":           10,
	"end/elytra":                  12,
	"end/levitate":                15,
	"adventure/kill_a_mob":        1,
	"adventure/trade":             2,
	"adventure/sleep_in_bed":      1,
	"adventure/kill_all_mobs":     18,
	"adventure/totem_of_undying":  10,
	"adventure/summon_iron_golem": 5,
	"adventure/sniper_duel":       6,
	"adventure/bullseye":          8,
	"adventure/two_birds_one_arrow": 8,
	"adventure/arbalistic":        10,
	"adventure/adventuring_time":  20,
	"adventure/hero_of_the_village": 12,
	"husbandry/breed_an_animal":   1,
	"husbandry/tame_an_animal":    2,
	"husbandry/fishy_business":    2,
	"husbandry/plant_seed":        1,
	"husbandry/bred_all_animals":  15,
	"husbandry/complete_catalogue": 12,
	"husbandry/balanced_diet":     15,
	"husbandry/obtain_netherite_hoe": 10,
}

// AwardFor returns the point value for an advancement id.
func AwardFor(achievement string) (int, bool) {
	pts, ok := awardPoints[achievement]
	return pts, ok
}
