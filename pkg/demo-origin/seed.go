package origin

// Seed data in the shape of jsonplaceholder.typicode.com.

var seedPosts = []Post{
	{UserID: 1, ID: 1, Title: "sunt aut facere repellat provident occaecati excepturi optio reprehenderit",
		Body: "quia et suscipit\nsuscipit recusandae consequuntur expedita et cum\nreprehenderit molestiae ut ut quas totam\nnostrum rerum est autem sunt rem eveniet architecto"},
	{UserID: 1, ID: 2, Title: "qui est esse",
		Body: "est rerum tempore vitae\nsequi sint nihil reprehenderit dolor beatae ea dolores neque\nfugiat blanditiis voluptate porro vel nihil molestiae ut reiciendis\nqui aperiam non debitis possimus qui neque nisi nulla"},
	{UserID: 1, ID: 3, Title: "ea molestias quasi exercitationem repellat qui ipsa sit aut",
		Body: "et iusto sed quo iure\nvoluptatem occaecati omnis eligendi aut ad\nvoluptatem doloribus vel accusantium quis pariatur\nmolestiae porro eius odio et labore et velit aut"},
	{UserID: 1, ID: 4, Title: "eum et est occaecati",
		Body: "ullam et saepe reiciendis voluptatem adipisci\nsit amet autem assumenda provident rerum culpa\nquis hic commodi nesciunt rem tenetur doloremque ipsam iure\nquis sunt voluptatem rerum illo velit"},
	{UserID: 1, ID: 5, Title: "nesciunt quas odio",
		Body: "repudiandae veniam quaerat sunt sed\nalias aut fugiat sit autem sed est\nvoluptatem omnis possimus esse voluptatibus quis\nest aut tenetur dolor neque"},
}

var seedAlbums = []Album{
	{UserID: 1, ID: 1, Title: "quidem molestiae enim"},
	{UserID: 1, ID: 2, Title: "sunt qui excepturi placeat culpa"},
	{UserID: 1, ID: 3, Title: "omnis laborum odio"},
	{UserID: 1, ID: 4, Title: "non esse culpa molestiae omnis sed optio"},
	{UserID: 1, ID: 5, Title: "eaque aut omnis a"},
	{UserID: 1, ID: 6, Title: "natus impedit quibusdam illo est"},
	{UserID: 1, ID: 7, Title: "quibusdam autem aliquid et et quia"},
	{UserID: 1, ID: 8, Title: "qui fuga est a eum"},
	{UserID: 1, ID: 9, Title: "saepe unde necessitatibus rem"},
	{UserID: 1, ID: 10, Title: "distinctio laborum qui"},
	{UserID: 2, ID: 11, Title: "quam nostrum impedit mollitia quod et dolor"},
	{UserID: 2, ID: 12, Title: "consequatur autem doloribus natus consectetur"},
	{UserID: 2, ID: 13, Title: "ab rerum non rerum consequatur ut ea unde"},
	{UserID: 2, ID: 14, Title: "ducimus molestias eos animi atque nihil"},
	{UserID: 2, ID: 15, Title: "ut pariatur rerum ipsum natus repellendus praesentium"},
	{UserID: 2, ID: 16, Title: "voluptatem aut maxime inventore autem magnam atque repellat"},
	{UserID: 2, ID: 17, Title: "aut minima voluptatem ut velit"},
	{UserID: 2, ID: 18, Title: "nesciunt quia et doloremque"},
	{UserID: 2, ID: 19, Title: "velit pariatur quaerat similique libero omnis quia"},
	{UserID: 2, ID: 20, Title: "voluptas rerum iure ut enim"},
}
